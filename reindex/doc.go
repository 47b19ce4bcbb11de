// Package reindex re-embeds the records of a local badger index with a new
// or updated embedding model.
//
// Records are scanned in batches, embedded with retries, normalized for
// cosine similarity and written back in place. Text, metadata and IDs are
// never changed.
package reindex
