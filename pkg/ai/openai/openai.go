// Package openai provides the OpenAI-backed implementation of the model
// capabilities in pkg/ai.
package openai

import (
	"sync"

	"github.com/freightwise/shipmentqa/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps an OpenAI embedding client for query vectorization.
//
// A Client should be created using NewClient.
type Client struct {
	embeddingModel string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	EmbeddingClient *openai.Client
}

// NewClientParams configures a new Client.
//
// EmbeddingModel specifies the model used for embeddings.
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint; an
// empty key disables the client.
type NewClientParams struct {
	EmbeddingModel string
	EmbeddingURL   string
	EmbeddingKey   string
}

// NewClient creates a Client configured with the provided parameters.
//
// Example:
//
//	client := openai.NewClient(openai.NewClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		EmbeddingURL:   "https://api.openai.com/v1",
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func NewClient(params NewClientParams) *Client {
	return &Client{
		embeddingModel:  params.EmbeddingModel,
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

// Metrics returns a copy of the accumulated usage metrics.
func (c *Client) Metrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *Client) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Add(m)
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
