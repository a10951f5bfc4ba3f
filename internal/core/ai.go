package core

import "context"

// EmbeddingProvider maps a batch of texts to vectors; result length and order match input.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider is single-turn text generation with no server-side state.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
