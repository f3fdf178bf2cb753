package importrun

import "github.com/reclaim-hq/reclaim/pkg/serrors"

// Error codes shared by the client-side guards and the backend so both sides
// of a rule can be matched identically.
var (
	ErrRunFinalized = serrors.NewError(
		"RUN_FINALIZED",
		"run has been finalized; its items are read-only history",
		"BulkImport.Errors.RunFinalized",
	)
	ErrRunNotReviewReady = serrors.NewError(
		"RUN_NOT_REVIEW_READY",
		"run has not finished extraction",
		"BulkImport.Errors.RunNotReviewReady",
	)
	ErrItemsNeedReview = serrors.NewError(
		"ITEMS_NEED_REVIEW",
		"some accepted items still need review; resolve them before finalizing",
		"BulkImport.Errors.ItemsNeedReview",
	)
)
