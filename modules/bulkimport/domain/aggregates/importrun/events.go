package importrun

// CreatedEvent is published after a run is stored; the extraction worker
// consumes it to start processing the uploaded document.
type CreatedEvent struct {
	Run          ImportRun
	DocumentPath string
}

// FinalizedEvent is published after a successful finalize.
type FinalizedEvent struct {
	Run     ImportRun
	Summary FinalizeSummary
}
