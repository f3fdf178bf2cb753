package review

import (
	"github.com/google/uuid"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
)

type Mode string

const (
	// ModeCompany reviews a whole company upload: one group per extracted
	// location item.
	ModeCompany Mode = "company"
	// ModeLocation reviews inside a known location context and may fall back
	// to a synthetic group when only child records were extracted.
	ModeLocation Mode = "location"
)

// LocationContext identifies the location a ModeLocation review happens in.
type LocationContext struct {
	ID   uuid.UUID
	Name string
}

// Group is a location item plus its child records — the unit of review
// decisions. Synthetic groups stand in for a location the extractor did not
// produce; their placeholder location must never be patched on the backend.
type Group struct {
	Location      *importitem.ImportItem
	IsSynthetic   bool
	SyntheticID   uuid.UUID
	SyntheticName string
	Children      []importitem.ImportItem
}

// Key is a stable identifier for UI state keyed per group.
func (g Group) Key() uuid.UUID {
	if g.IsSynthetic {
		return g.SyntheticID
	}
	return g.Location.ID()
}

func (g Group) Name() string {
	if g.IsSynthetic {
		return g.SyntheticName
	}
	if fields, err := importitem.DecodeLocationFields(g.Location.EffectiveData()); err == nil && fields.Name != "" {
		return fields.Name
	}
	return g.Location.ID().String()
}

// ReviewableChildren returns children that user actions may touch.
func (g Group) ReviewableChildren() []importitem.ImportItem {
	out := make([]importitem.ImportItem, 0, len(g.Children))
	for _, child := range g.Children {
		if child.Reviewable() {
			out = append(out, child)
		}
	}
	return out
}

// HasUnconfirmedDuplicates reports whether accepting any part of the group is
// still gated on a create-as-new confirmation.
func (g Group) HasUnconfirmedDuplicates() bool {
	if !g.IsSynthetic && g.Location.HasDuplicates() && !g.Location.ConfirmCreateNew() {
		return true
	}
	for _, child := range g.ReviewableChildren() {
		if child.HasDuplicates() && !child.ConfirmCreateNew() {
			return true
		}
	}
	return false
}

// BuildGroups derives the location -> children view from a flat item list.
// It is a pure function of its inputs: same items and mode yield structurally
// identical output, in backend item order.
func BuildGroups(items []importitem.ImportItem, mode Mode, locCtx *LocationContext) []Group {
	var locations []importitem.ImportItem
	var projects []importitem.ImportItem
	for _, item := range items {
		switch item.Kind() {
		case importitem.KindLocation:
			locations = append(locations, item)
		case importitem.KindProject:
			projects = append(projects, item)
		}
	}

	claimed := make(map[uuid.UUID]bool, len(projects))
	childrenOf := func(locationID uuid.UUID) []importitem.ImportItem {
		var out []importitem.ImportItem
		for _, p := range projects {
			if p.ChildOf(locationID) {
				claimed[p.ID()] = true
				out = append(out, p)
			}
		}
		return out
	}

	if mode == ModeLocation {
		ownsChild := false
		for _, loc := range locations {
			if len(childrenOf(loc.ID())) > 0 {
				ownsChild = true
				break
			}
		}
		if !ownsChild && len(projects) > 0 && locCtx != nil {
			// Only child records were extracted: synthesize a placeholder
			// group from the caller-supplied location context.
			return []Group{{
				IsSynthetic:   true,
				SyntheticID:   locCtx.ID,
				SyntheticName: locCtx.Name,
				Children:      projects,
			}}
		}
	}

	groups := make([]Group, 0, len(locations))
	for idx := range locations {
		loc := locations[idx]
		groups = append(groups, Group{
			Location: &locations[idx],
			Children: childrenOf(loc.ID()),
		})
	}
	// Projects the extractor could not attach to any location review as
	// single-item groups keyed by the project itself.
	for idx := range projects {
		if claimed[projects[idx].ID()] {
			continue
		}
		groups = append(groups, orphanGroup(projects[idx]))
	}
	return groups
}

func orphanGroup(p importitem.ImportItem) Group {
	name := p.ID().String()
	if fields, err := importitem.DecodeProjectFields(p.EffectiveData()); err == nil && fields.Name != "" {
		name = fields.Name
	}
	return Group{
		IsSynthetic:   true,
		SyntheticID:   p.ID(),
		SyntheticName: name,
		Children:      []importitem.ImportItem{p},
	}
}
