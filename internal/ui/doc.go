// Package ui renders the interactive progress view of long-running commands with bubbletea.
//
// [ProgressModel] follows bubbletea's Init/Update/View pattern. The work runs in its own goroutine and streams
// [tasks.ProgressUpdate] values through a channel; each update arrives as a message and moves the spinner,
// the phase label and the progress bar. The program quits once the work returns.
//
// Pressing q or ctrl+c cancels the work's context. The view stays up until the work has settled so a sync
// can commit what it delivered before the terminal is released.
package ui
