package ai

import "context"

// GenerateOptions carries the per-call completion parameters. MaxTokens is
// the token budget for the reply; zero means provider default.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// TextGenerator produces one completion for a single-turn prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}
