// Package review scores each drafted report section against the transcript.
//
// Sections are scored concurrently. A score of PassingScore or more marks
// the section core.VerdictDone; anything lower carries a suggestion naming
// the section and the change needed, which the workflow feeds back into
// section regeneration. A section whose scoring fails is left out of the
// notes and recorded as a warning.
package review
