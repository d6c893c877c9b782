package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// minSummaryRunes is the shortest text worth summarizing.
const minSummaryRunes = 20

const summarySystemPrompt = `You write short summaries of voice and text notes.
Rules:
1. Two or three sentences.
2. Keep the key ideas and facts.
3. Answer in the language of the note.
4. Do not add information that is not in the note.
5. Start with the summary itself, no preamble.`

// Client is a chat completions client used to summarize notes.
// It speaks the OpenAI-compatible API (DeepSeek, llama.cpp server, OpenAI).
type Client struct {
	client      *openai.Client
	Model       string
	MaxTokens   int
	Temperature float32
}

// NewClient creates a new LLM client.
func NewClient(baseURL, apiKey, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}
	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		Model:       model,
		MaxTokens:   500,
		Temperature: 0.3,
	}
}

// Summarize returns a short summary of text.
// Texts shorter than minSummaryRunes after trimming yield an empty summary and no error.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minSummaryRunes {
		return "", nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Summarize:\n\n" + text},
		},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
