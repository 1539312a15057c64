package rag

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

// LangChainModel adapts a langchaingo llms.Model to LLM and VisionModel.
type LangChainModel struct {
	model       llms.Model
	temperature float64
}

var (
	_ LLM         = (*LangChainModel)(nil)
	_ VisionModel = (*LangChainModel)(nil)
)

// NewLangChainModel creates an adapter calling model with the given temperature.
func NewLangChainModel(model llms.Model, temperature float64) *LangChainModel {
	return &LangChainModel{model: model, temperature: temperature}
}

// Generate sends a system and a user message and returns the first choice.
func (m *LangChainModel) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	return m.call(ctx, messages)
}

// DescribeImage sends the instruction together with an image data URL.
func (m *LangChainModel) DescribeImage(ctx context.Context, instruction, imageURL string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextContent{Text: instruction},
				llms.ImageURLPart(imageURL),
			},
		},
	}
	return m.call(ctx, messages)
}

func (m *LangChainModel) call(ctx context.Context, messages []llms.MessageContent) (string, error) {
	resp, err := m.model.GenerateContent(ctx, messages, llms.WithTemperature(m.temperature))
	if err != nil {
		return "", classifyLangChainError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &CapabilityError{Provider: "langchain", Kind: KindOther, Err: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Content, nil
}

// langchaingo flattens provider errors into strings, so the throttling marker
// can only be recognised from the message here.
func classifyLangChainError(err error) error {
	msg := strings.ToLower(err.Error())
	kind := KindOther
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		kind = KindRateLimited
	}
	return classified("langchain", kind, err)
}

// LangChainEmbedder adapts langchaingo's embeddings.Embedder to Embedder.
type LangChainEmbedder struct {
	embedder  embeddings.Embedder
	dimension int
}

// NewLangChainEmbedder creates a new adapter. A zero dimension is probed
// lazily with a test embedding.
func NewLangChainEmbedder(embedder embeddings.Embedder, dimension int) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: embedder, dimension: dimension}
}

func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return l.embedder.EmbedQuery(ctx, text)
}

func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return l.embedder.EmbedDocuments(ctx, texts)
}

// GetDimension returns the embedding dimension
func (l *LangChainEmbedder) GetDimension() int {
	if l.dimension > 0 {
		return l.dimension
	}
	probe, err := l.embedder.EmbedQuery(context.Background(), "test")
	if err != nil {
		return 0
	}
	l.dimension = len(probe)
	return l.dimension
}

// ImageDataURL encodes image bytes as a base64 data URL. An empty mimeType is
// sniffed from the content.
func ImageDataURL(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL into its MIME type and payload.
func ParseDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return mimeType, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mimeType, data, nil
}
