package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ChatCompleter is the subset of *openai.Client used by OpenAIModel.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIModel implements LLM and VisionModel on the OpenAI chat completion API.
type OpenAIModel struct {
	client      ChatCompleter
	model       string
	temperature float32
}

var (
	_ LLM         = (*OpenAIModel)(nil)
	_ VisionModel = (*OpenAIModel)(nil)
)

// NewOpenAIClient builds a go-openai client. An empty baseURL keeps the default endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// NewOpenAIModel creates a chat model. A temperature of 0 is sent as the
// smallest positive float, since go-openai omits zero values.
func NewOpenAIModel(client ChatCompleter, model string, temperature float64) *OpenAIModel {
	t := float32(temperature)
	if t == 0 {
		t = math.SmallestNonzeroFloat32
	}
	return &OpenAIModel{client: client, model: model, temperature: t}
}

func (m *OpenAIModel) Generate(ctx context.Context, system, user string) (string, error) {
	return m.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	})
}

func (m *OpenAIModel) DescribeImage(ctx context.Context, instruction, imageURL string) (string, error) {
	return m.complete(ctx, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: instruction},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageURL, Detail: openai.ImageURLDetailAuto},
				},
			},
		},
	})
}

func (m *OpenAIModel) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    messages,
		Temperature: m.temperature,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &CapabilityError{Provider: "openai", Kind: KindOther, Err: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	kind := KindOther

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.Type == "rate_limit_exceeded" {
			kind = KindRateLimited
		}
		if code, ok := apiErr.Code.(string); ok && code == "rate_limit_exceeded" {
			kind = KindRateLimited
		}
	case errors.As(err, &reqErr):
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
	}
	return classified("openai", kind, err)
}
