package review

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
)

func applied(t *testing.T, item importitem.ImportItem, action importitem.ReviewAction) importitem.ImportItem {
	t.Helper()
	got, err := item.Apply(action, importitem.ApplyOptions{})
	require.NoError(t, err)
	return got
}

func TestDeriveState_FollowsLocationItem(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	loc := location(t, runID, "North Yard")
	locID := loc.ID()
	child := project(t, runID, "Cardboard", &locID)

	pending := Group{Location: &loc, Children: []importitem.ImportItem{child}}
	require.Equal(t, StatePending, DeriveState(pending))

	added := applied(t, loc, importitem.ActionAccept)
	require.Equal(t, StateAdded, DeriveState(Group{Location: &added, Children: pending.Children}))

	skipped := applied(t, loc, importitem.ActionReject)
	require.Equal(t, StateSkipped, DeriveState(Group{Location: &skipped, Children: pending.Children}))
}

func TestDeriveState_SyntheticFollowsChildren(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	a := project(t, runID, "Cardboard", nil)
	b := project(t, runID, "Organics", nil)

	g := Group{IsSynthetic: true, SyntheticID: uuid.New(), Children: []importitem.ImportItem{a, b}}
	require.Equal(t, StatePending, DeriveState(g))

	g.Children = []importitem.ImportItem{applied(t, a, importitem.ActionAccept), b}
	require.Equal(t, StatePending, DeriveState(g), "one child still pending keeps the group pending")

	g.Children = []importitem.ImportItem{applied(t, a, importitem.ActionAccept), applied(t, b, importitem.ActionReject)}
	require.Equal(t, StateAdded, DeriveState(g))

	g.Children = []importitem.ImportItem{applied(t, a, importitem.ActionReject), applied(t, b, importitem.ActionReject)}
	require.Equal(t, StateSkipped, DeriveState(g))
}

func TestDeriveState_NoReviewableContentIsSettled(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	badLoc := importitem.New(importitem.NewParams{
		RunID:   runID,
		Kind:    importitem.KindLocation,
		Invalid: true,
	})
	badChild := importitem.New(importitem.NewParams{
		RunID:   runID,
		Kind:    importitem.KindProject,
		Invalid: true,
	})

	// An invalid childless location offers no transition; it must not hold
	// the run in pending forever.
	require.Equal(t, StateSkipped, DeriveState(Group{Location: &badLoc}))
	require.Equal(t, StateSkipped, DeriveState(Group{Location: &badLoc, Children: []importitem.ImportItem{badChild}}))
	require.Equal(t, 0, AcceptedCount(Group{Location: &badLoc}))
}

func TestCanFinalize_InvalidOnlyGroupDoesNotBlock(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	loc := location(t, runID, "North Yard")
	addedLoc := applied(t, loc, importitem.ActionAccept)
	badLoc := importitem.New(importitem.NewParams{
		RunID:   runID,
		Kind:    importitem.KindLocation,
		Invalid: true,
	})

	groups := []Group{{Location: &addedLoc}, {Location: &badLoc}}
	require.True(t, CanFinalize(groups))

	// Invalid content alone never satisfies the accepted-something rule.
	require.False(t, CanFinalize([]Group{{Location: &badLoc}}))
}

func TestCanFinalize_PendingOrphanBlocks(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	loc := location(t, runID, "North Yard")
	addedLoc := applied(t, loc, importitem.ActionAccept)
	orphan := project(t, runID, "Mixed Paper", nil)

	groups := BuildGroups([]importitem.ImportItem{addedLoc, orphan}, ModeCompany, nil)
	require.Len(t, groups, 2)
	require.False(t, CanFinalize(groups), "a pending unattached project blocks readiness")

	decided := applied(t, orphan, importitem.ActionAccept)
	groups = BuildGroups([]importitem.ImportItem{addedLoc, decided}, ModeCompany, nil)
	require.True(t, CanFinalize(groups))
}

func TestCanFinalize(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	locA := location(t, runID, "North Yard")
	locB := location(t, runID, "South Yard")

	// One group pending -> not ready.
	groups := []Group{
		{Location: &locA},
		{Location: &locB},
	}
	require.False(t, CanFinalize(groups))

	// All skipped -> decided but nothing accepted.
	skippedA := applied(t, locA, importitem.ActionReject)
	skippedB := applied(t, locB, importitem.ActionReject)
	groups = []Group{{Location: &skippedA}, {Location: &skippedB}}
	require.False(t, CanFinalize(groups))

	// One added with accepted content -> ready.
	addedA := applied(t, locA, importitem.ActionAccept)
	groups = []Group{{Location: &addedA}, {Location: &skippedB}}
	require.True(t, CanFinalize(groups))

	require.False(t, CanFinalize(nil), "no groups means nothing to finalize")
}

func TestSelection(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	loc := location(t, runID, "North Yard")
	locID := loc.ID()
	valid := project(t, runID, "Cardboard", &locID)
	invalid := importitem.New(importitem.NewParams{
		RunID:        runID,
		Kind:         importitem.KindProject,
		ParentItemID: &locID,
		Invalid:      true,
	})

	g := Group{Location: &loc, Children: []importitem.ImportItem{valid, invalid}}
	sel := FullSelection(g)
	require.True(t, sel.Has(valid.ID()))
	require.False(t, sel.Has(invalid.ID()), "invalid children are never selectable")

	require.False(t, sel.Toggle(valid.ID()))
	require.False(t, sel.Has(valid.ID()))
	require.True(t, sel.Toggle(valid.ID()))
}
