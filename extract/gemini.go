package extract

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/juniorbasecompany/turna/domain"
)

// defaultPrompt is used when a hospital has no extractor template of its
// own.
const defaultPrompt = `You are given a surgical demand map (operating room schedule).
Extract every case as a JSON object with fields:
room, start_time, end_time (RFC 3339 with offset), procedure,
anesthesia_type, complexity, skills (list), priority, is_pediatric (bool),
notes. Return {"demands": [...]} and nothing else.`

// GeminiExtractor implements DemandExtractor with the Gemini API.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGeminiExtractor builds the client. The API key is required; the
// model defaults to a vision-capable flash tier.
func NewGeminiExtractor(ctx context.Context, apiKey, model string, log zerolog.Logger) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, domain.BadRequest("GEMINI_API_KEY is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "create genai client", err)
	}
	return &GeminiExtractor{
		client: client,
		model:  model,
		log:    log.With().Str("component", "gemini-extractor").Logger(),
	}, nil
}

func (g *GeminiExtractor) Extract(ctx context.Context, path, prompt string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "read document", err)
	}
	if prompt == "" {
		prompt = defaultPrompt
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeTypeFor(path)),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "extractor call failed", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, domain.Unavailable("extractor returned an empty response")
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(stripFence(text)), &result); err != nil {
		return nil, domain.Wrap(domain.KindInternal, "extractor returned malformed JSON", err)
	}
	g.log.Debug().Int("bytes", len(data)).Str("model", g.model).Msg("extraction call finished")
	return result, nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	default:
		return "application/pdf"
	}
}

// stripFence removes a markdown code fence if the model wrapped its JSON
// despite the response mime type.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
