package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freightwise/shipmentqa/internal/util"
	"github.com/freightwise/shipmentqa/pkg/ai"

	"github.com/openai/openai-go/v3"
)

const defaultDimensions = 1536

const embedTimeout = 30 * time.Second

// Transient embedding API failures get one retry inside the call timeout.
const embedTries = 2

// Embed creates a vector embedding for the given query text using the
// configured embedding model. Blank input returns a zero vector without a
// model call.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int(util.GetEnvNumeric("AI_EMBED_DIM", defaultDimensions))
	if strings.TrimSpace(text) == "" {
		return make([]float32, dim), nil
	}
	if c.EmbeddingClient == nil {
		return nil, fmt.Errorf("embedding client not configured")
	}

	rCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: c.embeddingModel,
	}

	start := time.Now()
	response, err := util.RetryWithContext(rCtx, embedTries,
		func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
			return c.EmbeddingClient.Embeddings.New(ctx, body)
		})
	if err != nil {
		return nil, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != 1 {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want 1", len(response.Data))
	}

	vec := make([]float32, 0, dim)
	for _, v := range response.Data[0].Embedding {
		if len(vec) >= dim {
			break
		}
		vec = append(vec, float32(v))
	}
	if len(vec) < dim {
		padded := make([]float32, dim)
		copy(padded, vec)
		vec = padded
	}
	return vec, nil
}
