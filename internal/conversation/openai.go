package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice-agent-platform/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter implements ModelAdapter over the OpenAI chat completions API.
type OpenAIAdapter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAIAdapter(cfg config.OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("conversation: OPENAI_API_KEY is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &OpenAIAdapter{
		client:    openai.NewClient(cfg.APIKey),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (a *OpenAIAdapter) Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (Completion, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    msgs,
		MaxTokens:   a.maxTokens,
		Temperature: 0.7,
	})
	elapsed := time.Since(start)
	if err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrModelInvocation, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%w: no choices returned", ErrModelInvocation)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return Completion{}, fmt.Errorf("%w: empty reply", ErrModelInvocation)
	}

	return Completion{ReplyText: reply, Elapsed: elapsed}, nil
}
