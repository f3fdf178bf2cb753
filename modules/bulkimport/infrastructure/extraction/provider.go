package extraction

import (
	"context"
	"encoding/json"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
)

// ExtractedProject is one candidate waste-stream row pulled from a document,
// before normalization into an import item.
type ExtractedProject struct {
	Fields     json.RawMessage `json:"fields"`
	Raw        json.RawMessage `json:"raw"`
	Confidence *int32          `json:"confidence,omitempty"`
}

// ExtractedLocation is one candidate service location together with the
// projects attributed to it. Projects with no identifiable location arrive
// under a location with empty Fields.
type ExtractedLocation struct {
	Fields     json.RawMessage    `json:"fields"`
	Raw        json.RawMessage    `json:"raw"`
	Confidence *int32             `json:"confidence,omitempty"`
	Projects   []ExtractedProject `json:"projects"`
}

// Result is everything a provider could pull from a single document.
type Result struct {
	Locations []ExtractedLocation
	// Orphans are projects the provider could not attach to any location.
	Orphans []ExtractedProject
}

func (r Result) Empty() bool {
	if len(r.Orphans) > 0 {
		return false
	}
	for _, loc := range r.Locations {
		if len(loc.Fields) > 0 || len(loc.Projects) > 0 {
			return false
		}
	}
	return true
}

// ProgressFunc reports that the pipeline entered the given phase. Providers
// call it best-effort; a slow or failing report must not abort extraction.
type ProgressFunc func(ctx context.Context, phase importrun.PhaseKey)

// Provider turns an uploaded document into candidate locations and projects.
type Provider interface {
	Extract(ctx context.Context, document []byte, filename string, progress ProgressFunc) (Result, error)
}
