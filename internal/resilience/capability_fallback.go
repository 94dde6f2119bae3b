package resilience

import (
	"context"

	"github.com/MrWong99/parley/pkg/provider/capability"
)

// ConverserFallback implements [capability.Converser] and
// [capability.Summarizer] with automatic failover across multiple text
// backends. Each backend has its own circuit breaker.
type ConverserFallback struct {
	group *FallbackGroup[textBackend]
}

// textBackend is the combined interface a conversation backend must satisfy.
type textBackend interface {
	capability.Converser
	capability.Summarizer
}

// Compile-time interface assertions.
var (
	_ capability.Converser  = (*ConverserFallback)(nil)
	_ capability.Summarizer = (*ConverserFallback)(nil)
)

// NewConverserFallback creates a [ConverserFallback] with primary as the
// preferred backend. primary must implement both Converser and Summarizer.
func NewConverserFallback[T textBackend](primary T, primaryName string, cfg FallbackConfig) *ConverserFallback {
	return &ConverserFallback{
		group: NewFallbackGroup[textBackend](primary, primaryName, cfg),
	}
}

// AddFallback registers an additional text backend as a fallback.
func (f *ConverserFallback) AddFallback(name string, backend textBackend) {
	f.group.AddFallback(name, backend)
}

// Converse produces a reply from the first healthy backend.
func (f *ConverserFallback) Converse(ctx context.Context, req capability.ConverseRequest) (*capability.Reply, error) {
	return ExecuteWithResult(f.group, func(b textBackend) (*capability.Reply, error) {
		return b.Converse(ctx, req)
	})
}

// Summarize condenses the transcript using the first healthy backend.
func (f *ConverserFallback) Summarize(ctx context.Context, req capability.SummarizeRequest) (*capability.Reply, error) {
	return ExecuteWithResult(f.group, func(b textBackend) (*capability.Reply, error) {
		return b.Summarize(ctx, req)
	})
}

// ImageGeneratorFallback implements [capability.ImageGenerator] with
// automatic failover across multiple image backends.
type ImageGeneratorFallback struct {
	group *FallbackGroup[capability.ImageGenerator]
}

// Compile-time interface assertion.
var _ capability.ImageGenerator = (*ImageGeneratorFallback)(nil)

// NewImageGeneratorFallback creates an [ImageGeneratorFallback] with primary
// as the preferred backend.
func NewImageGeneratorFallback(primary capability.ImageGenerator, primaryName string, cfg FallbackConfig) *ImageGeneratorFallback {
	return &ImageGeneratorFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional image generation backend.
func (f *ImageGeneratorFallback) AddFallback(name string, backend capability.ImageGenerator) {
	f.group.AddFallback(name, backend)
}

// GenerateImage renders an image using the first healthy backend.
func (f *ImageGeneratorFallback) GenerateImage(ctx context.Context, req capability.GenerateRequest) (*capability.Reply, error) {
	return ExecuteWithResult(f.group, func(b capability.ImageGenerator) (*capability.Reply, error) {
		return b.GenerateImage(ctx, req)
	})
}
