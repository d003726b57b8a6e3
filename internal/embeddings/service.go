// Package embeddings converts text into unit-norm dense vectors via an
// external embedding service, memoised in a bounded MRU cache with an
// optional Redis second tier.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/circuitbreaker"
	"github.com/hopline-ai/hopline/internal/config"
	"github.com/hopline-ai/hopline/internal/metrics"
	"github.com/hopline-ai/hopline/internal/tracing"
)

// ErrUnavailable is returned when the embedding service cannot be reached
// during initialisation. Transient per-call errors propagate unchanged.
var ErrUnavailable = errors.New("embedding service unavailable")

// Provider produces a fixed-dimension unit-norm vector for a text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the HTTP-backed Provider. Initialisation is lazy and happens
// once; the first Embed call pays for the health probe.
type Service struct {
	cfg    config.EmbeddingConfig
	http   *circuitbreaker.HTTPWrapper
	lru    *LRUCache
	redis  *RedisCache
	logger *zap.Logger

	initOnce sync.Once
	initErr  error
}

// NewService creates an embedding service. redis may be nil.
func NewService(cfg config.EmbeddingConfig, redis *RedisCache, logger *zap.Logger) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 100
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return &Service{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(client, "embeddings", "embedding-service", logger),
		lru:    NewLRUCache(cfg.CacheSize),
		redis:  redis,
		logger: logger,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the unit-norm vector for text. Identical inputs yield
// byte-identical vectors for the life of the process.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	s.initOnce.Do(func() { s.initErr = s.probe(ctx) })
	if s.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, s.initErr)
	}

	if vec, ok := s.lru.Get(text); ok {
		metrics.EmbeddingCacheHits.WithLabelValues("local").Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheMisses.Inc()

	key := MakeKey(s.cfg.Model, text)
	if s.redis != nil {
		if vec, ok := s.redis.Get(ctx, key); ok {
			s.lru.Put(text, vec)
			return vec, nil
		}
	}

	vec, err := s.fetch(ctx, text)
	if err != nil {
		return nil, err
	}

	s.lru.Put(text, vec)
	if s.redis != nil {
		s.redis.Set(ctx, key, vec)
	}
	return vec, nil
}

// CacheStats exposes local cache counters.
func (s *Service) CacheStats() CacheStats {
	return s.lru.Stats()
}

// probe verifies the embedding service is reachable before first use.
func (s *Service) probe(ctx context.Context) error {
	if s.cfg.ServiceURL == "" {
		return errors.New("EMBEDDING_SERVICE_URL not set")
	}
	url := strings.TrimRight(s.cfg.ServiceURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %d", resp.StatusCode)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	body, err := json.Marshal(embedRequest{Texts: []string{text}, Model: s.cfg.Model})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(s.cfg.ServiceURL, "/") + "/embed"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.http.Do(req)
	if err != nil {
		metrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		metrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding service returned %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		metrics.RecordEmbedding(s.cfg.Model, "empty", time.Since(start).Seconds())
		return nil, errors.New("embedding service returned no vectors")
	}

	raw := parsed.Embeddings[0]
	if s.cfg.Dimension > 0 && len(raw) != s.cfg.Dimension {
		s.logger.Warn("Embedding dimension mismatch",
			zap.Int("expected", s.cfg.Dimension),
			zap.Int("got", len(raw)),
		)
	}

	vec := normalize(raw)
	metrics.RecordEmbedding(s.cfg.Model, "success", time.Since(start).Seconds())
	return vec, nil
}

// normalize converts to float32 with L2 norm 1. A zero vector is returned
// untouched rather than dividing by zero.
func normalize(raw []float64) []float32 {
	var sum float64
	for _, v := range raw {
		sum += v * v
	}
	norm := math.Sqrt(sum)

	vec := make([]float32, len(raw))
	if norm == 0 {
		for i, v := range raw {
			vec[i] = float32(v)
		}
		return vec
	}
	for i, v := range raw {
		vec[i] = float32(v / norm)
	}
	return vec
}
