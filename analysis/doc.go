// Package analysis produces the synopsis of an ingested transcript.
//
// The stage sends every segment to the generator in a single request and
// asks for the key points and themes of the whole conversation. Analysis
// failures never halt a run: the synopsis is left empty and a warning is
// recorded in the run trace, so research proceeds with less to work from.
package analysis
