package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

var (
	// ErrNotConfigured means no API key is available; the caller routes to
	// the fallback extractor.
	ErrNotConfigured = errors.New("remote extractor not configured")

	// ErrMalformedResponse means the model responded but the response could
	// not be used. This is surfaced to the operator rather than silently
	// falling back, to distinguish "unreachable" from "responded but
	// unusably".
	ErrMalformedResponse = errors.New("malformed model response")
)

// Remote converts receipt text into structured fields using an external
// text-understanding service.
type Remote interface {
	Extract(ctx context.Context, text string) (receipt.Fields, error)
}

// GeminiExtractor implements Remote on top of the Gemini API.
type GeminiExtractor struct {
	apiKey string
	model  string
}

// NewGeminiExtractor creates a Gemini-backed extractor. The API key may be
// empty; Extract then returns ErrNotConfigured.
func NewGeminiExtractor(apiKey, model string) *GeminiExtractor {
	return &GeminiExtractor{apiKey: apiKey, model: model}
}

const extractionPrompt = "You are a receipt field extractor.\n\n" +
	"Task:\n" +
	"- Extract the fields below from the receipt text.\n" +
	"- Output STRICT JSON only (no comments, no extra text).\n" +
	"- Output a single JSON object.\n\n" +
	"The object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\", or null if missing\n" +
	"- \"store\": string store name, or null if missing\n" +
	"- \"amount\": number, the receipt total in whole currency units, or 0 if missing\n" +
	"- \"category\": string, one of food, transport, shopping, entertainment, medical, education, other\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// Extract sends the receipt text to Gemini and parses the strict-JSON
// response into fields. Missing fields are left at their zero values for
// the default-filling policy; a response that is not valid JSON is an
// ErrMalformedResponse.
func (g *GeminiExtractor) Extract(ctx context.Context, text string) (receipt.Fields, error) {
	if g.apiKey == "" {
		return receipt.Fields{}, ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return receipt.Fields{}, fmt.Errorf("Extract: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{Text: "Receipt text:\n" + text},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return receipt.Fields{}, fmt.Errorf("Extract: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return receipt.Fields{}, fmt.Errorf("Extract: empty response: %w", ErrMalformedResponse)
	}

	return fieldsFromModelJSON(rawText)
}

// fieldsFromModelJSON cleans up and decodes the model's JSON output.
func fieldsFromModelJSON(rawText string) (receipt.Fields, error) {
	clean := cleanModelJSON(rawText)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &obj); err != nil {
		snippet := rawText
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return receipt.Fields{}, fmt.Errorf("Extract: decode %q: %v: %w", snippet, err, ErrMalformedResponse)
	}

	return fieldsFromModelOutput(obj), nil
}

// cleanModelJSON strips Markdown fences and surrounding junk if the model
// ignored the strict-JSON instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only from the first '{' to the last '}' if junk remains.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
