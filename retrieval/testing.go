package retrieval

import (
	"context"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/storage"
	"github.com/poiesic/scribe/storage/badger"
)

// memoryIndex closes its badger backend along with the index.
type memoryIndex struct {
	*badger.RecordStore
	backend *badger.Backend
}

func (m *memoryIndex) Close() error {
	return m.backend.Close()
}

// NewMemoryConnector creates a connector over an in-memory badger index for
// testing. Caller must close the connector when done.
func NewMemoryConnector(embedder ai.Embedder, opts ...ConnectorOption) (*Connector, error) {
	dial := func(ctx context.Context) (storage.VectorIndex, error) {
		records, _, backend, err := badger.NewMemoryStore(embedder)
		if err != nil {
			return nil, err
		}
		return &memoryIndex{RecordStore: records, backend: backend}, nil
	}
	return NewConnector(dial, opts...)
}
