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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/storage"
)

// CheckpointRepository stores ingestion checkpoints beside the records in
// the same Badger database.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository returns a repository backed by backend.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{backend: backend}
}

// SaveCheckpoint stamps checkpoint with the current time and writes it,
// replacing any earlier checkpoint for the same tenant and source.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if err := core.ValidateTenantID(checkpoint.TenantID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	checkpoint.UpdatedAt = time.Now().UTC()
	key := makeCheckpointKey(checkpoint.TenantID, checkpoint.Source)
	val := storage.MarshalCheckpoint(checkpoint)
	return r.backend.update(func(tx *badger.Txn) error {
		return tx.Set(key, val)
	})
}

// LoadCheckpoint returns the checkpoint for tenantID and source, or nil when
// the source has never been ingested.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, tenantID, source string) (*core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	err := r.backend.view(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(tenantID, source))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return storage.UnmarshalCheckpoint(raw)
}
