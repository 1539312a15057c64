package extract

import (
	"context"
	"strings"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

// Instructions sent with page rasters and embedded images.
const (
	TranscribeInstruction = "Transcribe the text on this page exactly as it appears. " +
		"If there is Tamil text, transcribe it accurately in Tamil script. " +
		"Return only the transcribed text."
	DescribeInstruction = "Describe this image in detail. If it's a chart or diagram, explain the data. " +
		"If it contains text, transcribe it."
)

// ImageDescriber turns image bytes into text. It returns "" when the
// capability fails.
type ImageDescriber interface {
	Describe(ctx context.Context, image []byte, mimeType, instruction string) string
}

// Describer calls a vision model with the image embedded as a data URL,
// retrying throttled calls.
type Describer struct {
	model   rag.VisionModel
	retrier *rag.Retrier
	logger  log.Logger
}

var _ ImageDescriber = (*Describer)(nil)

// DescriberOption configures the Describer
type DescriberOption func(*Describer)

// WithRetryConfig overrides the throttling retry policy.
func WithRetryConfig(cfg rag.RetryConfig) DescriberOption {
	return func(d *Describer) {
		d.retrier = rag.NewRetrier(cfg)
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) DescriberOption {
	return func(d *Describer) {
		d.logger = logger
	}
}

// NewDescriber creates a Describer over model.
func NewDescriber(model rag.VisionModel, opts ...DescriberOption) *Describer {
	d := &Describer{
		model:   model,
		retrier: rag.NewRetrier(rag.DefaultRetryConfig()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = log.OrDefault(d.logger)
	return d
}

// Describe returns the model's answer for the image, or "" on failure.
func (d *Describer) Describe(ctx context.Context, image []byte, mimeType, instruction string) string {
	if len(image) == 0 {
		return ""
	}
	url := rag.ImageDataURL(image, mimeType)

	out, err := d.retrier.Do(ctx, func(ctx context.Context) (string, error) {
		return d.model.DescribeImage(ctx, instruction, url)
	})
	if err != nil {
		d.logger.Warn("vision call failed: %v", err)
		return ""
	}
	return strings.TrimSpace(out)
}
