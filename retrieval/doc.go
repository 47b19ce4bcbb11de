// Package retrieval provides tenant-scoped similarity search over a
// storage.VectorIndex.
//
// A Connector dials the configured index once, retrying with a bounded
// backoff policy, and shares the resulting Store across pipeline runs.
// The Store adds record ID assignment, tenant post-filtering, multi-query
// expansion and reranking on top of the raw index.
//
// Basic usage:
//
//	conn, err := retrieval.NewConnector(dial, retrieval.WithStoreOptions(
//	    retrieval.WithGenerator(provider.Generator()),
//	))
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	store, err := conn.Store(ctx)
//	if err != nil {
//	    return err // wraps core.ErrStoreUnavailable
//	}
//	results, err := store.MultiQuerySearch(ctx, "tenant-1", "sleep disturbance", 5)
package retrieval
