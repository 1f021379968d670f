// Package openai embeds chunk text through an OpenAI-compatible
// /embeddings endpoint.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DanielTromp/atlas/internal/adapters/driven/embedding/embedhttp"
	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	fallbackDimensions = 1536
)

// Config selects the endpoint and model. Zero values take the defaults.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions shortens vectors of text-embedding-3 models server side.
	// For other models it only declares the native size.
	Dimensions int
}

// EmbeddingService turns chunk text into vectors.
type EmbeddingService struct {
	api        *embedhttp.Client
	model      string
	dimensions int
	shortens   bool
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewEmbeddingService validates cfg and builds the service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", domain.ErrInvalidInput)
	}
	cfg.BaseURL = orDefault(cfg.BaseURL, DefaultBaseURL)
	cfg.Model = orDefault(cfg.Model, DefaultModel)
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = domain.EmbeddingDimensions()[cfg.Model]
	}
	if dims == 0 {
		dims = fallbackDimensions
	}

	api := embedhttp.New("openai", cfg.BaseURL, cfg.Timeout)
	api.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	return &EmbeddingService{
		api:        api,
		model:      cfg.Model,
		dimensions: dims,
		shortens:   strings.HasPrefix(cfg.Model, "text-embedding-3-"),
	}, nil
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in one request. The API may answer out of order,
// so vectors are placed by their index field.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embedRequest{Model: s.model, Input: texts}
	if s.shortens {
		req.Dimensions = s.dimensions
	}
	var resp embedResponse
	if err := s.api.PostJSON(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: openai: index %d out of range for %d inputs", domain.ErrEmbedding, d.Index, len(texts))
		}
		vecs[d.Index] = narrow(d.Embedding)
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("%w: openai: no vector for input %d", domain.ErrEmbedding, i)
		}
	}
	return vecs, nil
}

func (s *EmbeddingService) Dimensions() int   { return s.dimensions }
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping lists models, which checks the key without spending tokens.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.api.Get(ctx, "/models")
}

func (s *EmbeddingService) Close() error { return nil }

func narrow(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
