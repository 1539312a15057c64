package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiModel implements LLM and VisionModel on Google's Gemini API.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

var (
	_ LLM         = (*GeminiModel)(nil)
	_ VisionModel = (*GeminiModel)(nil)
)

// NewGeminiModel creates a Gemini client for model.
func NewGeminiModel(ctx context.Context, apiKey, model string, temperature float64) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiModel{client: client, model: model, temperature: float32(temperature)}, nil
}

func (m *GeminiModel) Generate(ctx context.Context, system, user string) (string, error) {
	gm := m.generative()
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return m.generate(ctx, gm, genai.Text(user))
}

func (m *GeminiModel) DescribeImage(ctx context.Context, instruction, imageURL string) (string, error) {
	mimeType, data, err := ParseDataURL(imageURL)
	if err != nil {
		return "", &CapabilityError{Provider: "gemini", Kind: KindOther, Err: err}
	}
	format := strings.TrimPrefix(mimeType, "image/")
	return m.generate(ctx, m.generative(), genai.Text(instruction), genai.ImageData(format, data))
}

// Close releases the underlying client.
func (m *GeminiModel) Close() error {
	return m.client.Close()
}

func (m *GeminiModel) generative() *genai.GenerativeModel {
	gm := m.client.GenerativeModel(m.model)
	gm.SetTemperature(m.temperature)
	return gm
}

func (m *GeminiModel) generate(ctx context.Context, gm *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	resp, err := gm.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	return sb.String(), nil
}

func classifyGeminiError(err error) error {
	kind := KindOther
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	if status.Code(err) == codes.ResourceExhausted {
		kind = KindRateLimited
	}
	return classified("gemini", kind, err)
}
