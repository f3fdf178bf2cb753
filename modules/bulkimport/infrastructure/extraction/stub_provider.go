package extraction

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
)

// StubProvider parses a tiny line-oriented format for development and tests:
//
//	location: Name|Address|City
//	project: Name|Category|Volume|Unit
//
// Projects attach to the most recent location; projects before any location
// become orphans. Lines starting with '#' are ignored.
type StubProvider struct {
	// Confidence assigned to every extracted item. Defaults to 90.
	Confidence int32
}

func NewStubProvider() *StubProvider {
	return &StubProvider{Confidence: 90}
}

func (p *StubProvider) Extract(ctx context.Context, document []byte, _ string, progress ProgressFunc) (Result, error) {
	progress(ctx, importrun.PhaseReadingFile)

	var result Result
	scanner := bufio.NewScanner(bytes.NewReader(document))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		parts := strings.Split(strings.TrimSpace(rest), "|")
		switch strings.TrimSpace(key) {
		case "location":
			result.Locations = append(result.Locations, p.location(parts))
		case "project":
			proj := p.project(parts)
			if len(result.Locations) == 0 {
				result.Orphans = append(result.Orphans, proj)
			} else {
				last := &result.Locations[len(result.Locations)-1]
				last.Projects = append(last.Projects, proj)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, err
	}

	progress(ctx, importrun.PhaseIdentifyingLocations)
	progress(ctx, importrun.PhaseExtractingStreams)
	progress(ctx, importrun.PhaseCategorizing)
	return result, nil
}

func (p *StubProvider) location(parts []string) ExtractedLocation {
	fields := importitem.LocationFields{Name: part(parts, 0)}
	fields.Address = part(parts, 1)
	fields.City = part(parts, 2)
	confidence := p.Confidence
	encoded := importitem.EncodeLocationFields(fields)
	return ExtractedLocation{Fields: encoded, Raw: encoded, Confidence: &confidence}
}

func (p *StubProvider) project(parts []string) ExtractedProject {
	fields := importitem.ProjectFields{Name: part(parts, 0)}
	fields.StreamCategory = part(parts, 1)
	if vol := part(parts, 2); vol != "" {
		fields.EstimatedMonthlyVolume, _ = decimal.NewFromString(vol)
	}
	fields.VolumeUnit = part(parts, 3)
	confidence := p.Confidence
	encoded := importitem.EncodeProjectFields(fields)
	return ExtractedProject{Fields: encoded, Raw: encoded, Confidence: &confidence}
}

func part(parts []string, i int) string {
	if i >= len(parts) {
		return ""
	}
	return strings.TrimSpace(parts[i])
}
