package questions

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeChat struct {
	lastRequest openai.ChatCompletionRequest
	content     string
	err         error
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastRequest = request
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func TestGenerateSendsPromptAndParsesArray(t *testing.T) {
	api := &fakeChat{content: `["q1", "q2", "q3"]`}
	gen := &OpenAIGenerator{api: api, model: "test-model"}

	got, err := gen.Generate(context.Background(), "Policy: Example (ID: POL-1)")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"q1", "q2", "q3"}) {
		t.Fatalf("unexpected questions: %v", got)
	}
	if api.lastRequest.Model != "test-model" {
		t.Fatalf("unexpected model: %s", api.lastRequest.Model)
	}
	if len(api.lastRequest.Messages) != 2 {
		t.Fatalf("expected system and user message, got %d", len(api.lastRequest.Messages))
	}
	if api.lastRequest.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("expected system message first, got %s", api.lastRequest.Messages[0].Role)
	}
	if api.lastRequest.Messages[1].Content != "Policy: Example (ID: POL-1)" {
		t.Fatalf("unexpected user content: %s", api.lastRequest.Messages[1].Content)
	}
}

func TestGenerateWrapsAPIError(t *testing.T) {
	api := &fakeChat{err: errors.New("rate limited")}
	gen := &OpenAIGenerator{api: api, model: "test-model"}
	if _, err := gen.Generate(context.Background(), "content"); err == nil {
		t.Fatalf("expected error from API failure")
	}
}

func TestGenerateRejectsEmptyResponse(t *testing.T) {
	api := &fakeChat{content: ""}
	gen := &OpenAIGenerator{api: api, model: "test-model"}
	if _, err := gen.Generate(context.Background(), "content"); err == nil {
		t.Fatalf("expected error for empty completion")
	}
}

func TestParseQuestionsShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"bare array", `["a", "b"]`, []string{"a", "b"}},
		{"questions key", `{"questions": ["a", "b", "c"]}`, []string{"a", "b", "c"}},
		{"other list key", `{"items": ["a"]}`, []string{"a"}},
		{"caps at three", `["a", "b", "c", "d", "e"]`, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseQuestions(tc.raw)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseQuestionsRejectsUnusableShapes(t *testing.T) {
	for _, raw := range []string{`{not json`, `"just a string"`, `{"count": 3}`} {
		if _, err := parseQuestions(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestPrepareContentOrdersSections(t *testing.T) {
	content := PrepareContent(map[string]any{
		"id":    "POL-1",
		"title": "Example Policy",
		"sections": map[string]any{
			"scope":   "Applies to all staff",
			"purpose": "Why this exists",
			"empty":   "",
		},
	})
	if !strings.HasPrefix(content, "Policy: Example Policy (ID: POL-1)") {
		t.Fatalf("unexpected header: %s", content)
	}
	purposeAt := strings.Index(content, "PURPOSE:")
	scopeAt := strings.Index(content, "SCOPE:")
	if purposeAt == -1 || scopeAt == -1 || purposeAt > scopeAt {
		t.Fatalf("sections not in sorted order: %s", content)
	}
	if strings.Contains(content, "EMPTY:") {
		t.Fatalf("empty section should be dropped: %s", content)
	}
}

func TestPrepareContentFallsBackToFullText(t *testing.T) {
	content := PrepareContent(map[string]any{
		"id":        "POL-1",
		"title":     "Example Policy",
		"full_text": strings.Repeat("x", 3000),
	})
	if !strings.Contains(content, "CONTENT EXCERPT: ") {
		t.Fatalf("expected full_text excerpt: %s", content)
	}
	if len(content) > 2200 {
		t.Fatalf("excerpt not truncated, length %d", len(content))
	}
}
