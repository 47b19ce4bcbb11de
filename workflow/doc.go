// Package workflow sequences the report pipeline.
//
// An Orchestrator threads one core.PipelineState through ingestion,
// analysis, research, drafting and review. A fatal stage error marks the
// state failed and stops the run. After review, sections that did not pass
// are regenerated from their review suggestions and reviewed again, for a
// bounded number of correction rounds, before the run completes.
//
// RegenerateSection rewrites a single section outside of any run.
package workflow
