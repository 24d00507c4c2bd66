package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultEmbeddingModel is the default OpenAI embeddings model.
const DefaultEmbeddingModel = oai.EmbeddingModelTextEmbedding3Small

// Compile-time check that *OpenAIEmbedder satisfies [Embedder].
var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder implements [Embedder] using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client oai.Client
	model  string
}

// embedderConfig holds optional configuration for the embedder.
type embedderConfig struct {
	baseURL string
	timeout time.Duration
}

// EmbedderOption is a functional option for [OpenAIEmbedder].
type EmbedderOption func(*embedderConfig)

// WithEmbedderBaseURL overrides the default OpenAI API base URL.
func WithEmbedderBaseURL(url string) EmbedderOption {
	return func(c *embedderConfig) { c.baseURL = url }
}

// WithEmbedderTimeout sets a per-request HTTP timeout.
func WithEmbedderTimeout(d time.Duration) EmbedderOption {
	return func(c *embedderConfig) { c.timeout = d }
}

// NewOpenAIEmbedder constructs an embedder for the given model. If model is
// empty, [DefaultEmbeddingModel] (text-embedding-3-small) is used.
func NewOpenAIEmbedder(apiKey, model string, opts ...EmbedderOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("retrieval: embedder api key must not be empty")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	cfg := &embedderConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &OpenAIEmbedder{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Embed implements [Embedder].
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: e.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("retrieval: embed: empty response")
	}
	return float64ToFloat32(resp.Data[0].Embedding), nil
}

// Dimensions implements [Embedder] for known OpenAI models.
func (e *OpenAIEmbedder) Dimensions() int {
	lower := strings.ToLower(e.model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"):
		return 1536
	case strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	default:
		return 1536
	}
}

// ModelID returns the embedding model identifier.
func (e *OpenAIEmbedder) ModelID() string {
	return e.model
}

// float64ToFloat32 converts a []float64 slice to []float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
