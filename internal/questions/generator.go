// Package questions regenerates the "Questions Answered" metadata for
// corpus documents through a chat model, gated by the content-hash change
// detector so unchanged documents never trigger an API call.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel balances quality and per-document cost for short
	// structured outputs.
	DefaultModel = "gpt-4.1-mini"

	questionCount = 3

	systemPrompt = "You are an expert in healthcare policy analysis. Identify the" +
		" 3 most important practical questions this policy answers." +
		" Return ONLY a JSON array of 3 questions."
)

// FallbackQuestions stand in when generation fails, so an API outage never
// leaves an index entry empty.
var FallbackQuestions = []string{
	"What procedures are outlined in this policy?",
	"What responsibilities are assigned in this policy?",
	"How is compliance with this policy monitored?",
}

// Generator produces the questions a document answers from its prepared
// text content.
type Generator interface {
	Generate(ctx context.Context, content string) ([]string, error)
}

// chatAPI is the slice of the OpenAI client the generator uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator implements Generator over the chat completions API.
type OpenAIGenerator struct {
	api   chatAPI
	model string
}

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{api: openai.NewClient(apiKey), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, content string) ([]string, error) {
	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.5,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("questions: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("questions: empty completion response")
	}
	return parseQuestions(resp.Choices[0].Message.Content)
}

// parseQuestions accepts the shapes the model actually produces: a bare
// array, an object with a "questions" list, or an object whose first list
// value holds the questions.
func parseQuestions(raw string) ([]string, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("questions: parse completion %q: %w", raw, err)
	}
	switch payload := value.(type) {
	case []any:
		return stringList(payload), nil
	case map[string]any:
		if list, ok := payload["questions"].([]any); ok {
			return stringList(list), nil
		}
		for _, field := range payload {
			if list, ok := field.([]any); ok && len(list) > 0 {
				return stringList(list), nil
			}
		}
	}
	return nil, fmt.Errorf("questions: unexpected completion shape: %q", raw)
}

func stringList(items []any) []string {
	out := make([]string, 0, questionCount)
	for _, item := range items {
		if len(out) == questionCount {
			break
		}
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// PrepareContent flattens a document payload into the prompt body: title
// and id, then each populated section truncated for token budget, with a
// full-text excerpt as a fallback when sections are sparse.
func PrepareContent(payload any) string {
	fields, _ := payload.(map[string]any)
	title, _ := fields["title"].(string)
	id, _ := fields["id"].(string)

	parts := []string{fmt.Sprintf("Policy: %s (ID: %s)", title, id)}
	if sections, ok := fields["sections"].(map[string]any); ok {
		names := make([]string, 0, len(sections))
		for name := range sections {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			text := sections[name]
			if text == nil {
				continue
			}
			body := fmt.Sprint(text)
			if body == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", strings.ToUpper(name), truncate(body, 1000)))
		}
	}
	if len(parts) < 3 {
		if fullText, _ := fields["full_text"].(string); fullText != "" {
			parts = append(parts, "CONTENT EXCERPT: "+truncate(fullText, 2000))
		}
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
