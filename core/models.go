package core

//go:generate go run ../cmd/musgen

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ContentID returns a deterministic hex fingerprint of text using BLAKE2b.
// Identical text always produces the same fingerprint.
func ContentID(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// NewRecordID generates a globally unique record ID scoped to a tenant.
// Concurrent uploads for the same tenant never collide.
func NewRecordID(tenantID string) string {
	return tenantID + "-" + uuid.NewString()
}

// IndexedRecord is a text segment stored in the retrieval index.
type IndexedRecord struct {
	ID         string
	TenantID   string
	Text       string
	Metadata   map[string]string
	Vector     []float32 // Populated by backends that embed locally
	InsertedAt time.Time
}

// SearchResult is an indexed record paired with its relevance score.
type SearchResult struct {
	Record *IndexedRecord
	Score  float32
}

// Segment is a bounded chunk of source text carried through the pipeline.
type Segment struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Summary  *string           `json:"summary,omitempty"` // nil when summarization failed
}

// HasSummary reports whether the segment carries a summary.
func (s Segment) HasSummary() bool {
	return s.Summary != nil
}

// FindingOrigin identifies where a research finding came from.
type FindingOrigin string

const (
	// OriginIndex marks findings retrieved from the tenant's index.
	OriginIndex FindingOrigin = "index"
	// OriginWeb marks findings returned by external web search.
	OriginWeb FindingOrigin = "web"
)

// Finding is a snippet gathered during research, with provenance.
type Finding struct {
	Query  string        `json:"query"`
	Text   string        `json:"text"`
	Source string        `json:"source,omitempty"` // URL or record ID
	Origin FindingOrigin `json:"origin"`
	Score  float32       `json:"score,omitempty"`
}

// VerdictDone marks a reviewed section that needs no further correction.
const VerdictDone = "DONE"

// ReviewNote is the review outcome for a single report section.
type ReviewNote struct {
	Score      int    `json:"score"`
	Verdict    string `json:"verdict,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Passed reports whether the section was accepted by review.
func (n ReviewNote) Passed() bool {
	return n.Verdict == VerdictDone
}

// TraceEntry records one stage execution.
type TraceEntry struct {
	Stage    string    `json:"stage"`
	At       time.Time `json:"at"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Checkpoint remembers the last indexed content of a source for a tenant.
// Ingestion consults it to avoid re-indexing unchanged sources.
type Checkpoint struct {
	TenantID  string
	Source    string
	ContentID string
	Segments  int64
	UpdatedAt time.Time
}
