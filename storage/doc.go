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

// Package storage provides the persistence layer behind the retrieval store.
//
// A VectorIndex holds tenant-scoped text records and answers similarity
// queries for a tenant. Two backends exist:
//
//   - storage/badger embeds records locally and keeps them in BadgerDB
//   - storage/chroma delegates storage and search to a Chroma server
//
// Constructors return the concrete backend type; callers depend on the
// interfaces declared here:
//
//	backend, err := badger.OpenBackend(dir, false)
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//	index, err := badger.NewRecordStore(backend, embedder)
//
// Tests use the in-memory BadgerDB backend:
//
//	records, checkpoints, backend, err := badger.NewMemoryStore(embedder)
//	defer backend.Close()
//
// # Tenancy
//
// Every read and write is scoped to a tenant ID. A query for one tenant
// never returns records written for another.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
