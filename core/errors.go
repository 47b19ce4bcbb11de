// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import "errors"

// Fatal pipeline errors. Any of these halts a run and moves it to StatusFailed.
var (
	// ErrStoreUnavailable indicates the retrieval store could not be reached
	// within the connection retry budget.
	ErrStoreUnavailable = errors.New("retrieval store unavailable")

	// ErrIndexingFailed indicates a partial or total failure writing records
	// to the retrieval store.
	ErrIndexingFailed = errors.New("indexing failed")

	// ErrSearchFailed indicates a similarity query could not be executed.
	ErrSearchFailed = errors.New("search failed")

	// ErrUnsupportedDocument indicates no loader is registered for a source type.
	ErrUnsupportedDocument = errors.New("unsupported document")

	// ErrEmptyDocument indicates a source document produced no text.
	ErrEmptyDocument = errors.New("document contains no text")

	// ErrMalformedReport indicates generated report output did not validate
	// against the active schema.
	ErrMalformedReport = errors.New("malformed report")

	// ErrInvalidTemplate indicates a report template could not be parsed into a schema.
	ErrInvalidTemplate = errors.New("invalid report template")

	// ErrNoSegments indicates a stage that requires segments ran before ingestion.
	ErrNoSegments = errors.New("pipeline state has no segments")
)

// State merge errors
var (
	// ErrFieldAlreadySet indicates a write-once state field was written twice.
	ErrFieldAlreadySet = errors.New("state field already set")

	// ErrInvalidTransition indicates a status change outside the allowed order.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownSection indicates a report key that is not part of the active schema.
	ErrUnknownSection = errors.New("unknown report section")

	// ErrTenantRequired indicates an empty tenant identifier.
	ErrTenantRequired = errors.New("tenant id required")

	// ErrInvalidRecord indicates an IndexedRecord failed validation.
	ErrInvalidRecord = errors.New("invalid indexed record")

	// ErrEmptyContent indicates a record's Text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")
)
