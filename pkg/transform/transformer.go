// Package transform decides the concrete type of untyped resources.
//
// A Transformer inspects a raw resource and returns the typed resources it
// stands for. Returning no results means the transformer does not handle the
// resource; a Chain then asks the next transformer.
package transform

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// Transformer derives typed resources from an untyped one.
type Transformer interface {
	Transform(ctx context.Context, r *resource.Resource) ([]resource.TransformationResult, error)
}

// Func adapts a function to the Transformer interface.
type Func func(ctx context.Context, r *resource.Resource) ([]resource.TransformationResult, error)

// Transform implements Transformer.
func (f Func) Transform(ctx context.Context, r *resource.Resource) ([]resource.TransformationResult, error) {
	return f(ctx, r)
}

// Chain asks transformers in order and returns the first non-empty result.
type Chain struct {
	transformers []Transformer
	logger       zerolog.Logger
}

// NewChain creates a chain of transformers.
func NewChain(logger zerolog.Logger, transformers ...Transformer) *Chain {
	return &Chain{
		transformers: transformers,
		logger:       logger.With().Str("component", "transform").Logger(),
	}
}

// Transform implements Transformer. A failing transformer is logged and the
// next one is asked. If every transformer that was asked failed, the last
// error is returned.
func (c *Chain) Transform(ctx context.Context, r *resource.Resource) ([]resource.TransformationResult, error) {
	var lastErr error
	for i, t := range c.transformers {
		results, err := t.Transform(ctx, r)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", r.URL).Int("transformer", i).Msg("Transformer failed")
			lastErr = fmt.Errorf("transformer %d: %w", i, err)
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, lastErr
}
