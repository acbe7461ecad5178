package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// translatedItem is one element of the strict JSON shape the LLM is asked
// to return: {"translations":[{"id":i,"translation":...}]}.
type translatedItem struct {
	ID          int    `json:"id"`
	Translation string `json:"translation"`
}

type translationResponse struct {
	Translations []translatedItem `json:"translations"`
}

// Client is the narrow LLM contract the pipeline depends on, kept behind
// an interface so tests can inject a fake. TranslateShort is the
// tempo-constrained path: the same request/response contract as the batch
// path, with a cap on output length.
type Client interface {
	Translate(ctx context.Context, srcLang, tgtLang string, texts []string) ([]string, error)
	TranslateShort(ctx context.Context, srcLang, tgtLang, text string, maxChars int) (string, error)
}

// Stats is the usage/cost accounting the translation client exposes
// alongside its narrow Translate contract.
type Stats struct {
	RequestCount int
	TokensUsed   int
}

// OpenAIClient translates chunks of text via an OpenAI-compatible chat
// completion endpoint, requesting a strict JSON shape and parsing it back.
type OpenAIClient struct {
	apiKey      func() string
	baseURL     string
	model       string
	temperature float32

	requestCount int
	tokensUsed   int
}

// NewOpenAIClient constructs a client against the given base URL (empty
// baseURL uses the provider default). apiKey is invoked on every request
// rather than baked in at construction time, so a credential watcher can
// rotate the key under a running pipeline without bouncing the worker.
func NewOpenAIClient(apiKey func() string, baseURL, model string, temperature float32) *OpenAIClient {
	return &OpenAIClient{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
	}
}

func (c *OpenAIClient) newUnderlying() *openai.Client {
	cfg := openai.DefaultConfig(c.apiKey())
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Stats reports cumulative request/token usage for cost accounting.
func (c *OpenAIClient) Stats() Stats {
	return Stats{RequestCount: c.requestCount, TokensUsed: c.tokensUsed}
}

// Translate issues a single chat completion request for the given chunk of
// texts and returns translations in input order.
func (c *OpenAIClient) Translate(ctx context.Context, srcLang, tgtLang string, texts []string) ([]string, error) {
	systemPrompt := buildSystemPrompt(srcLang, tgtLang)
	userPrompt := buildUserPrompt(texts)

	resp, err := c.newUnderlying().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, err
	}

	c.requestCount++
	c.tokensUsed += resp.Usage.TotalTokens

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("translation response contained no choices")
	}

	return parseTranslationResponse(resp.Choices[0].Message.Content, len(texts))
}

// TranslateShort issues a single-item request whose system prompt carries
// an output-length cap, used when a synthesized segment cannot fit its
// timeline slot even at maximum tempo stretch.
func (c *OpenAIClient) TranslateShort(ctx context.Context, srcLang, tgtLang, text string, maxChars int) (string, error) {
	systemPrompt := buildSystemPrompt(srcLang, tgtLang) + fmt.Sprintf(
		" Keep the translation under %d characters; prefer dropping filler words over dropping meaning.", maxChars)
	userPrompt := buildUserPrompt([]string{text})

	resp, err := c.newUnderlying().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", err
	}

	c.requestCount++
	c.tokensUsed += resp.Usage.TotalTokens

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translation response contained no choices")
	}

	out, err := parseTranslationResponse(resp.Choices[0].Message.Content, 1)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

func buildSystemPrompt(srcLang, tgtLang string) string {
	return fmt.Sprintf(
		"You are a professional subtitle translator. Translate from %s to %s. "+
			"Preserve meaning and register. Be concise: translated text drives timed "+
			"speech synthesis, so avoid padding. Maintain terminology consistency "+
			"across the batch. Do not invent annotations, stage directions, or "+
			"speaker labels that are not in the source. Leave bracketed sound-effect "+
			"markers such as [MUSIC] or [LAUGHTER] unchanged rather than translating "+
			"them. Respond with strict JSON only, no commentary.",
		srcLang, tgtLang,
	)
}

func buildUserPrompt(texts []string) string {
	var b strings.Builder
	b.WriteString(`Translate each item and respond with JSON of the exact shape `)
	b.WriteString(`{"translations":[{"id":0,"translation":"..."}, ...]} `)
	b.WriteString("with exactly one output item per input item, in any order, ids matching input index:\n\n")
	for i, t := range texts {
		fmt.Fprintf(&b, "%d: %s\n", i, t)
	}
	return b.String()
}

// parseTranslationResponse strips a markdown code-fence wrapper if present,
// decodes the strict JSON shape, sorts by id, and validates count and
// id-range.
func parseTranslationResponse(raw string, wantCount int) ([]string, error) {
	cleaned := stripCodeFence(raw)

	var parsed translationResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("translation response shape mismatch: %w", err)
	}
	if len(parsed.Translations) != wantCount {
		return nil, fmt.Errorf("translation response count mismatch: got %d, want %d", len(parsed.Translations), wantCount)
	}

	sort.Slice(parsed.Translations, func(i, j int) bool {
		return parsed.Translations[i].ID < parsed.Translations[j].ID
	})

	out := make([]string, wantCount)
	seen := make(map[int]bool, wantCount)
	for _, item := range parsed.Translations {
		if item.ID < 0 || item.ID >= wantCount {
			return nil, fmt.Errorf("translation response id %d out of range", item.ID)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("translation response duplicate id %d", item.ID)
		}
		seen[item.ID] = true
		out[item.ID] = item.Translation
	}

	return out, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
