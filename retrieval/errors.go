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


package retrieval

import "errors"

var (
	// ErrDialerRequired is returned when a connector is created without a dialer.
	ErrDialerRequired = errors.New("dialer required")

	// ErrIndexRequired is returned when a store is created without an index.
	ErrIndexRequired = errors.New("vector index required")

	// ErrConnectorClosed is returned by Store after Close.
	ErrConnectorClosed = errors.New("connector closed")

	// ErrInvalidScore is returned when a scorer reply cannot be read as a number.
	ErrInvalidScore = errors.New("invalid relevance score")
)
