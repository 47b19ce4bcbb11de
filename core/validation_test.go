package core

import (
	"errors"
	"testing"
)

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name    string
		tenant  string
		wantErr bool
	}{
		{"valid tenant", "user123", false},
		{"tenant with dashes", "org-1-user-2", false},
		{"empty tenant", "", true},
		{"whitespace tenant", "   ", true},
		{"control characters", "user\n1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.tenant)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTenantID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrTenantRequired) {
				t.Errorf("ValidateTenantID() error = %v, want ErrTenantRequired", err)
			}
		})
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *IndexedRecord
		wantErr error
	}{
		{
			name:   "valid record without id",
			record: &IndexedRecord{TenantID: "t1", Text: "hello"},
		},
		{
			name:   "valid record with tenant id",
			record: &IndexedRecord{ID: "t1-abc", TenantID: "t1", Text: "hello"},
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "missing tenant",
			record:  &IndexedRecord{Text: "hello"},
			wantErr: ErrTenantRequired,
		},
		{
			name:    "empty text",
			record:  &IndexedRecord{TenantID: "t1", Text: "  "},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "id from another tenant",
			record:  &IndexedRecord{ID: "t2-abc", TenantID: "t1", Text: "hello"},
			wantErr: ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRecord() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
