package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const extractionPrompt = `You are an information extraction engine for a doctor appointment system.

Your job:
- Extract structured information from a single user message.
- Do NOT make decisions.
- Do NOT guess missing data.
- Do NOT normalize dates or times.
- If unsure, return null.

Return ONLY valid JSON in the exact schema below.
No explanations. No markdown.

Schema:
{
  "intent": "BOOK | CANCEL | RESCHEDULE | null",
  "date_text": "string | null",
  "time_text": "string | null",
  "patient_name": "string | null",
  "patient_phone": "string | null",
  "confidence": "high | medium | low"
}`

// GeminiExtractor implements Extractor using Google's Gemini API.
type GeminiExtractor struct {
	client  *genai.Client
	modelID string
}

func NewGeminiExtractor(ctx context.Context, apiKey, modelID string) (*GeminiExtractor, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("nlu: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("nlu: failed to create gemini client: %w", err)
	}

	return &GeminiExtractor{
		client:  client,
		modelID: modelID,
	}, nil
}

func (e *GeminiExtractor) Extract(ctx context.Context, message, currentIntent string) (Extraction, error) {
	model := e.client.GenerativeModel(e.modelID)
	model.SetTemperature(0)
	model.SystemInstruction = genai.NewUserContent(genai.Text(extractionPrompt))

	prompt := fmt.Sprintf("User message:\n%q\n\nCurrent intent (if known):\n%q", message, currentIntent)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Empty(), fmt.Errorf("nlu: gemini generate failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Empty(), errors.New("nlu: gemini returned no candidates")
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			raw.WriteString(string(text))
		}
	}

	return parseExtraction(raw.String())
}

// parseExtraction tolerates markdown fences around the JSON body.
func parseExtraction(raw string) (Extraction, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload struct {
		Intent       *string `json:"intent"`
		DateText     *string `json:"date_text"`
		TimeText     *string `json:"time_text"`
		PatientName  *string `json:"patient_name"`
		PatientPhone *string `json:"patient_phone"`
		Confidence   *string `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Empty(), fmt.Errorf("nlu: invalid extraction json: %w", err)
	}

	out := Empty()
	out.Intent = deref(payload.Intent)
	out.DateText = deref(payload.DateText)
	out.TimeText = deref(payload.TimeText)
	out.PatientName = deref(payload.PatientName)
	out.PatientPhone = deref(payload.PatientPhone)

	switch Confidence(deref(payload.Confidence)) {
	case ConfidenceHigh:
		out.Confidence = ConfidenceHigh
	case ConfidenceMedium:
		out.Confidence = ConfidenceMedium
	default:
		out.Confidence = ConfidenceLow
	}

	switch out.Intent {
	case "BOOK", "CANCEL", "RESCHEDULE", "":
	case "null":
		out.Intent = ""
	default:
		out.Intent = ""
	}

	return out, nil
}

func deref(s *string) string {
	if s == nil || *s == "null" {
		return ""
	}
	return *s
}
