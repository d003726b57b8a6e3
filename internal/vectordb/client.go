// Package vectordb is a thin client for a Pinecone index: top-K similarity
// query with opaque metadata and vector upsert. Query embedding happens here
// so callers work purely in text.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/circuitbreaker"
	"github.com/hopline-ai/hopline/internal/config"
	"github.com/hopline-ai/hopline/internal/embeddings"
	"github.com/hopline-ai/hopline/internal/metrics"
	"github.com/hopline-ai/hopline/internal/tracing"
)

// Client talks to a single Pinecone index over REST. Safe for concurrent use.
type Client struct {
	cfg      config.PineconeConfig
	embedder embeddings.Provider
	http     *circuitbreaker.HTTPWrapper
	logger   *zap.Logger
}

// NewClient creates a vector index client. The client tolerates a missing
// configuration; queries then return empty with a warning instead of failing.
func NewClient(cfg config.PineconeConfig, embedder embeddings.Provider, logger *zap.Logger) *Client {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &Client{
		cfg:      cfg,
		embedder: embedder,
		http:     circuitbreaker.NewHTTPWrapper(httpClient, "pinecone", "vector-index", logger),
		logger:   logger,
	}
}

// Configured reports whether the index can be reached.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// Query embeds queryText and returns the topK nearest matches sorted by
// descending score, plus the highest score (nil when there are no matches).
// An unconfigured backend yields (nil, nil, nil) with a warning.
func (c *Client) Query(ctx context.Context, queryText string, topK int) ([]Match, *float64, error) {
	if !c.cfg.Configured() {
		c.logger.Warn("Vector index not configured, returning empty result",
			zap.String("index", c.cfg.Index),
		)
		return nil, nil, nil
	}

	vec, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}

	start := time.Now()
	body, err := json.Marshal(queryRequest{
		Vector:          vec,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, nil, err
	}

	var parsed queryResponse
	if err := c.post(ctx, "/query", body, &parsed); err != nil {
		metrics.RecordVectorQuery("error", time.Since(start).Seconds())
		return nil, nil, err
	}
	metrics.RecordVectorQuery("success", time.Since(start).Seconds())

	matches := parsed.Matches
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) == 0 {
		return nil, nil, nil
	}
	highest := matches[0].Score
	return matches, &highest, nil
}

// Upsert writes items into the index.
func (c *Client) Upsert(ctx context.Context, items []UpsertItem) error {
	if !c.cfg.Configured() {
		return fmt.Errorf("vector index not configured")
	}
	if len(items) == 0 {
		return nil
	}

	body, err := json.Marshal(upsertRequest{Vectors: items})
	if err != nil {
		return err
	}

	var parsed upsertResponse
	if err := c.post(ctx, "/vectors/upsert", body, &parsed); err != nil {
		metrics.VectorUpserts.WithLabelValues("error").Inc()
		return err
	}
	metrics.VectorUpserts.WithLabelValues("success").Inc()

	c.logger.Debug("Vector upsert complete",
		zap.Int("requested", len(items)),
		zap.Int("upserted", parsed.UpsertedCount),
	)
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out interface{}) error {
	url := strings.TrimRight(c.cfg.Host, "/") + path

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.cfg.APIKey)
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pinecone %s returned %d: %s", path, resp.StatusCode, string(snippet))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
