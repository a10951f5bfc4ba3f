package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// ErrNoCompletion means the model answered without any text.
var ErrNoCompletion = errors.New("model returned no text")

type GeminiLLM struct {
	client    *genai.Client
	modelName string
	guard     *guard
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, ratePerSec float64, log *slog.Logger) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{
		client:    cl,
		modelName: modelName,
		guard:     newGuard("gemini-generate", ratePerSec, log),
	}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	res, err := g.guard.do(ctx, "complete", func() (any, error) {
		return m.GenerateContent(ctx, genai.Text(userPrompt))
	})
	if err != nil {
		return "", err
	}
	return candidateText(res.(*genai.GenerateContentResponse))
}

// candidateText joins the text parts of the first candidate. A blocked or
// empty response is an error, never an empty answer.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason.String()
		}
		return "", fmt.Errorf("%s: %w", reason, ErrNoCompletion)
	}

	c := resp.Candidates[0]
	var b strings.Builder
	if c.Content != nil {
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("empty candidate (finish reason %s): %w", c.FinishReason.String(), ErrNoCompletion)
	}
	return b.String(), nil
}
