// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a three-view workflow for running a migration:
//  1. [ConfirmView] : Review the job's mode flags before starting
//  2. [RunView] : Monitor real-time progress updates per entity type
//  3. [ResultView] : Display the summary table and aggregate totals
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the MigrationEngine, providing non-blocking status reporting during runs.
package ui
