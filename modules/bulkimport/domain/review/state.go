package review

import (
	"github.com/google/uuid"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
)

// GroupState is the ephemeral per-group review state. It is a pure projection
// of item statuses and never the source of truth.
type GroupState string

const (
	StatePending GroupState = "pending"
	StateAdded   GroupState = "added"
	StateSkipped GroupState = "skipped"
)

// DeriveState projects a group's review state from its item statuses. Real
// groups follow the location item; synthetic groups (and groups whose
// location was invalidated at extraction) follow their children.
func DeriveState(g Group) GroupState {
	if !g.IsSynthetic && g.Location.Reviewable() {
		switch g.Location.Status() {
		case importitem.StatusAccepted, importitem.StatusAmended:
			return StateAdded
		case importitem.StatusRejected:
			return StateSkipped
		default:
			return StatePending
		}
	}

	reviewable := g.ReviewableChildren()
	if len(reviewable) == 0 {
		// Nothing in the group can be acted on (location invalid, children
		// invalid or absent): the group is settled, contributing no entities.
		return StateSkipped
	}
	anyAccepted := false
	for _, child := range reviewable {
		switch child.Status() {
		case importitem.StatusPendingReview:
			return StatePending
		case importitem.StatusAccepted, importitem.StatusAmended:
			anyAccepted = true
		}
	}
	if anyAccepted {
		return StateAdded
	}
	return StateSkipped
}

// AcceptedCount tallies accepted and amended items in the group, the location
// record included.
func AcceptedCount(g Group) int {
	n := 0
	if !g.IsSynthetic {
		switch g.Location.Status() {
		case importitem.StatusAccepted, importitem.StatusAmended:
			n++
		}
	}
	for _, child := range g.Children {
		switch child.Status() {
		case importitem.StatusAccepted, importitem.StatusAmended:
			n++
		}
	}
	return n
}

// CanFinalize is the finalization-readiness predicate: every group decided
// and at least one group contributing accepted items.
func CanFinalize(groups []Group) bool {
	if len(groups) == 0 {
		return false
	}
	anyAdded := false
	for _, g := range groups {
		switch DeriveState(g) {
		case StatePending:
			return false
		case StateAdded:
			if AcceptedCount(g) > 0 {
				anyAdded = true
			}
		}
	}
	return anyAdded
}

// Selection is the per-location set of child item ids slated for accept on
// the next Add. Purely local state; only read by Add.
type Selection map[uuid.UUID]struct{}

// FullSelection selects every reviewable child of the group.
func FullSelection(g Group) Selection {
	sel := make(Selection)
	for _, child := range g.ReviewableChildren() {
		sel[child.ID()] = struct{}{}
	}
	return sel
}

func (s Selection) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Toggle flips membership and reports the new state.
func (s Selection) Toggle(id uuid.UUID) bool {
	if s.Has(id) {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}
