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

import (
	"fmt"
	"strings"
)

// ValidateTenantID validates a tenant identifier.
//
// Validation rules:
//   - must not be empty or whitespace
//   - must not contain control characters
func ValidateTenantID(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantRequired
	}
	for _, r := range tenantID {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: tenant id contains control characters", ErrTenantRequired)
		}
	}
	return nil
}

// ValidateRecord validates an IndexedRecord before it is written.
//
// Validation rules:
//   - TenantID must be valid
//   - Text must not be empty
//   - ID, when set, must belong to the record's tenant
//
// NOT validated (populated by backends):
//   - Vector
//   - InsertedAt
func ValidateRecord(record *IndexedRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if err := ValidateTenantID(record.TenantID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if strings.TrimSpace(record.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContent)
	}

	if record.ID != "" && !strings.HasPrefix(record.ID, record.TenantID+"-") {
		return fmt.Errorf("%w: id %q does not belong to tenant %q", ErrInvalidRecord, record.ID, record.TenantID)
	}

	return nil
}
