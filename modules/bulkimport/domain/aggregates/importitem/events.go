package importitem

// ReviewedEvent is published after a successful review transition.
type ReviewedEvent struct {
	Item   ImportItem
	Action ReviewAction
}
