package importitem

import (
	"encoding/json"
	"strings"

	"github.com/wI2L/jsondiff"
)

type ReviewAction string

const (
	ActionAccept ReviewAction = "accept"
	ActionAmend  ReviewAction = "amend"
	ActionReject ReviewAction = "reject"
	ActionReset  ReviewAction = "reset"
)

func (a ReviewAction) Valid() bool {
	switch a {
	case ActionAccept, ActionAmend, ActionReject, ActionReset:
		return true
	}
	return false
}

// ApplyOptions carries the optional payload of a review action. Nil pointers
// mean "leave as is".
type ApplyOptions struct {
	Amendments       json.RawMessage
	ReviewNotes      *string
	ConfirmCreateNew *bool
}

// CanApply checks the transition guards without mutating the item.
// confirmCreateNew is the flag value the action would carry (the persisted one
// unless the options override it).
func (i ImportItem) CanApply(action ReviewAction, opts ApplyOptions) error {
	if !action.Valid() {
		return ErrUnknownAction
	}
	if i.status == StatusInvalid {
		return ErrItemInvalid
	}

	switch action {
	case ActionAccept, ActionAmend:
		confirm := i.confirmCreateNew
		if opts.ConfirmCreateNew != nil {
			confirm = *opts.ConfirmCreateNew
		}
		if i.HasDuplicates() && !confirm {
			return ErrDuplicateUnconfirmed
		}
		if action == ActionAmend && opts.Amendments == nil && i.amendments == nil {
			return ErrAmendmentsRequired
		}
	}
	return nil
}

// Apply runs a review transition and returns the updated item. The zero-value
// receiver semantics of the aggregate make this usable both as the in-memory
// authority and as the reference for the SQL implementation.
func (i ImportItem) Apply(action ReviewAction, opts ApplyOptions) (ImportItem, error) {
	if err := i.CanApply(action, opts); err != nil {
		return i, err
	}

	if opts.ConfirmCreateNew != nil {
		i.confirmCreateNew = *opts.ConfirmCreateNew
	}
	if opts.ReviewNotes != nil {
		i.reviewNotes = *opts.ReviewNotes
	}

	switch action {
	case ActionAccept:
		i.status = StatusAccepted
		i.amendments = nil
		// Only substantive notes resolve the marker; a blank string is not an
		// operator acknowledgement.
		i.needsReview = i.needsReview && !hasNotes(opts.ReviewNotes)
	case ActionAmend:
		amendments := opts.Amendments
		if amendments == nil {
			amendments = i.amendments
		}
		if equalJSON(i.normalized, amendments) {
			// Amendments identical to normalized data collapse to a plain accept.
			i.status = StatusAccepted
			i.amendments = nil
		} else {
			i.status = StatusAmended
			i.amendments = amendments
		}
		i.needsReview = false
	case ActionReject:
		i.status = StatusRejected
	case ActionReset:
		// confirmCreateNew keeps its last persisted value so a deliberate
		// duplicate confirmation is not silently masked.
		i.status = StatusPendingReview
		i.amendments = nil
		i.reviewNotes = ""
	}
	return i, nil
}

func hasNotes(notes *string) bool {
	return notes != nil && strings.TrimSpace(*notes) != ""
}

func equalJSON(a, b json.RawMessage) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	patch, err := jsondiff.CompareJSON(a, b)
	if err != nil {
		return false
	}
	return len(patch) == 0
}
