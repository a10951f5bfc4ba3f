package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// maxEmbedBatch is the provider's per-request limit for BatchEmbedContents.
const maxEmbedBatch = 100

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	guard     *guard
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, ratePerSec float64, log *slog.Logger) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-embedding-001"
	}
	return &GeminiEmbedder{
		client:    cl,
		modelName: modelName,
		guard:     newGuard("gemini-embed", ratePerSec, log),
	}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts embeds texts in provider-sized batches. The result has one
// vector per input, in input order.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		res, err := g.guard.do(ctx, "embed", func() (any, error) {
			return em.BatchEmbedContents(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		resp := res.(*genai.BatchEmbedContentsResponse)
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}
