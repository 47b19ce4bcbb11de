// Package research gathers supporting material for a report draft.
//
// The stage asks the generator for a handful of search queries derived from
// the synopsis, then runs each query against the tenant's retrieval index
// and an optional web searcher. Sub-query failures only leave gaps in the
// findings; research never fails a run.
package research
