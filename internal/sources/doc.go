// Package sources keeps one file watch per local source file of a running
// program: its entry script plus every currently loaded module that lives
// under the project source root and outside excluded dependency folders.
//
// The set is reconciled only when the host calls Refresh, typically after each
// rerun, so a newly imported package is picked up on the run that loads it.
package sources
