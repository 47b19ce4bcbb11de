// Package drafting writes the structured report for a run.
//
// # Tool loop
//
// The generator receives the transcript segments, the synopsis and the
// research findings together with the active schema, and may call two
// tools before answering:
//
//   - web_search runs an external web search
//   - retrieve_documents runs a tenant-scoped multi-query search with reranking
//
// The loop ends when a reply carries no tool calls. It is bounded by a
// configurable number of tool rounds; once the bound is hit one final
// request is made without tools, asking for the best report the model can
// write from what it already has.
//
// The reply is decoded, keys outside the schema are dropped, and the result
// is validated. A report that does not validate fails the stage with
// core.ErrMalformedReport and is never stored.
//
// # Regeneration
//
// Regenerator rewrites a single section from its current content and a
// free-text instruction, grounded on the tenant's index. It returns only the
// new content and never touches pipeline state.
package drafting
