package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
)

const extractionSystemPrompt = `You extract waste-management data from vendor documents.
Given the text of an uploaded document, return strict JSON with this shape:
{
  "locations": [
    {
      "fields": {"name": "", "address": "", "city": "", "region": "", "postalCode": ""},
      "confidence": 0,
      "projects": [
        {
          "fields": {"name": "", "streamCategory": "", "estimatedMonthlyVolume": "0", "volumeUnit": "", "notes": ""},
          "confidence": 0
        }
      ]
    }
  ],
  "orphans": []
}
"orphans" holds projects you cannot attribute to any location, same shape as
entries of "projects". Confidence is an integer 0-100. Omit fields you cannot
determine. Return JSON only, no prose.`

var jsonFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

type OpenAIProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// OpenAIProvider extracts locations and waste streams from document text via
// a chat-completions model instructed to answer in strict JSON.
type OpenAIProvider struct {
	client openai.Client
	config OpenAIProviderConfig
}

func NewOpenAIProvider(config OpenAIProviderConfig) *OpenAIProvider {
	var client openai.Client
	if config.BaseURL != "" {
		client = openai.NewClient(
			option.WithAPIKey(config.APIKey),
			option.WithBaseURL(config.BaseURL),
		)
	} else {
		client = openai.NewClient(
			option.WithAPIKey(config.APIKey),
		)
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 8192
	}
	return &OpenAIProvider{client: client, config: config}
}

func (p *OpenAIProvider) Extract(ctx context.Context, document []byte, filename string, progress ProgressFunc) (Result, error) {
	progress(ctx, importrun.PhaseReadingFile)

	text := string(document)
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}

	progress(ctx, importrun.PhaseIdentifyingLocations)

	response, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(fmt.Sprintf("Document %q:\n\n%s", filename, text)),
		},
		Temperature: openai.Float(p.config.Temperature),
		MaxTokens:   openai.Int(p.config.MaxTokens),
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "extraction completion failed")
	}
	if len(response.Choices) == 0 {
		return Result{}, errors.New("extraction returned no choices")
	}

	progress(ctx, importrun.PhaseExtractingStreams)

	content := stripFences(response.Choices[0].Message.Content)

	var payload struct {
		Locations []struct {
			Fields     json.RawMessage `json:"fields"`
			Confidence *int32          `json:"confidence"`
			Projects   []struct {
				Fields     json.RawMessage `json:"fields"`
				Confidence *int32          `json:"confidence"`
			} `json:"projects"`
		} `json:"locations"`
		Orphans []struct {
			Fields     json.RawMessage `json:"fields"`
			Confidence *int32          `json:"confidence"`
		} `json:"orphans"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Result{}, errors.Wrap(err, "extraction returned malformed JSON")
	}

	progress(ctx, importrun.PhaseCategorizing)

	var result Result
	for _, loc := range payload.Locations {
		extracted := ExtractedLocation{
			Fields:     loc.Fields,
			Raw:        loc.Fields,
			Confidence: loc.Confidence,
		}
		for _, proj := range loc.Projects {
			extracted.Projects = append(extracted.Projects, ExtractedProject{
				Fields:     proj.Fields,
				Raw:        proj.Fields,
				Confidence: proj.Confidence,
			})
		}
		result.Locations = append(result.Locations, extracted)
	}
	for _, proj := range payload.Orphans {
		result.Orphans = append(result.Orphans, ExtractedProject{
			Fields:     proj.Fields,
			Raw:        proj.Fields,
			Confidence: proj.Confidence,
		})
	}
	return result, nil
}

func stripFences(content string) string {
	if match := jsonFenceRegex.FindStringSubmatch(content); match != nil {
		return match[1]
	}
	return strings.TrimSpace(content)
}
