// Package ingestion implements the first pipeline stage: it loads a source
// document, splits it into segments, summarizes each segment concurrently,
// indexes the segments for the run's tenant and resolves the report schema.
//
// Document loaders are resolved by file extension through a Registry.
// Summarization runs on a worker pool; a failed summary leaves the segment's
// Summary nil and is recorded as a warning rather than failing the stage.
package ingestion
