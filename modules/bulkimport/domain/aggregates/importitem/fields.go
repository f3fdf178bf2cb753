package importitem

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// LocationFields is the system-ready shape of a location item's normalized
// data. Raw extracted data stays opaque; this is what finalization persists.
type LocationFields struct {
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

func (f LocationFields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// ProjectFields is the system-ready shape of a waste-stream project item.
type ProjectFields struct {
	Name                   string          `json:"name"`
	StreamCategory         string          `json:"streamCategory,omitempty"`
	EstimatedMonthlyVolume decimal.Decimal `json:"estimatedMonthlyVolume"`
	VolumeUnit             string          `json:"volumeUnit,omitempty"`
	Notes                  string          `json:"notes,omitempty"`
}

func (f ProjectFields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

func DecodeLocationFields(data json.RawMessage) (LocationFields, error) {
	var f LocationFields
	if err := json.Unmarshal(data, &f); err != nil {
		return LocationFields{}, err
	}
	return f, nil
}

func DecodeProjectFields(data json.RawMessage) (ProjectFields, error) {
	var f ProjectFields
	if err := json.Unmarshal(data, &f); err != nil {
		return ProjectFields{}, err
	}
	return f, nil
}

func EncodeLocationFields(f LocationFields) json.RawMessage {
	data, _ := json.Marshal(f)
	return data
}

func EncodeProjectFields(f ProjectFields) json.RawMessage {
	data, _ := json.Marshal(f)
	return data
}
