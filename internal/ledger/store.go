// Package ledger is the durable record of retrieval activity: queries, hops,
// per-hop documents, responses and evidence chains, plus the feedback
// bookkeeping derived from them.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/circuitbreaker"
	"github.com/hopline-ai/hopline/internal/config"
	"github.com/hopline-ai/hopline/internal/embeddings"
	"github.com/hopline-ai/hopline/internal/vectordb"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("ledger: not found")

// feedbackDecayLambda controls how fast old feedback stops counting.
const feedbackDecayLambda = 0.1

// VectorUpserter is the slice of the vector index the correction path needs.
type VectorUpserter interface {
	Upsert(ctx context.Context, items []vectordb.UpsertItem) error
}

// Store is the SQL-backed ledger. All writes are idempotent inserts keyed by
// caller-supplied UUIDs; sqlite is the default backend, postgres optional.
type Store struct {
	db     *circuitbreaker.SQLWrapper
	driver string
	logger *zap.Logger

	// optional correction sink; nil disables injection
	embedder embeddings.Provider
	vector   VectorUpserter

	now func() int64
}

// Open connects, enables foreign keys and applies the schema.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case "sqlite":
		driverName = "sqlite3"
		dsn = cfg.DSN
		if !strings.Contains(dsn, "_foreign_keys") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_foreign_keys=on"
		}
	case "postgres":
		driverName = "postgres"
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Store{
		db:     circuitbreaker.NewSQLWrapper(db, cfg.Driver, logger),
		driver: cfg.Driver,
		logger: logger,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// WithCorrectionSink wires the embedding provider and vector index used to
// ingest user corrections. Without it corrections are logged and skipped.
func (s *Store) WithCorrectionSink(embedder embeddings.Provider, vector VectorUpserter) *Store {
	s.embedder = embedder
	s.vector = vector
	return s
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) rebind(query string) string {
	return s.db.DB().Rebind(query)
}

// LogQuery appends a query record with the current wall-clock timestamp.
func (s *Store) LogQuery(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO queries (id, text, timestamp) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		id, text, s.now())
	if err != nil {
		return fmt.Errorf("log query: %w", err)
	}
	return nil
}

// LogHop appends a hop record. An empty status defaults to pending.
func (s *Store) LogHop(ctx context.Context, hop Hop) error {
	if hop.Status == "" {
		hop.Status = HopStatusPending
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO hops (id, query_id, hop_order, sub_query, reasoning, status)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		hop.ID, hop.QueryID, hop.HopOrder, hop.SubQuery, hop.Reasoning, hop.Status)
	if err != nil {
		return fmt.Errorf("log hop: %w", err)
	}
	return nil
}

// LogHopDocument appends one surfaced document for a hop.
func (s *Store) LogHopDocument(ctx context.Context, doc HopDocument) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO hop_documents (id, hop_id, document_id, dense_score, sparse_score, rank_position)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		doc.ID, doc.HopID, doc.DocumentID, doc.DenseScore, doc.SparseScore, doc.RankPosition)
	if err != nil {
		return fmt.Errorf("log hop document: %w", err)
	}
	return nil
}

// LogResponse appends a response record with feedback unset.
func (s *Store) LogResponse(ctx context.Context, id, queryID, content string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO responses (id, query_id, content, timestamp, user_feedback)
		 VALUES (?, ?, ?, ?, 0) ON CONFLICT (id) DO NOTHING`),
		id, queryID, content, s.now())
	if err != nil {
		return fmt.Errorf("log response: %w", err)
	}
	return nil
}

// LogEvidenceChain appends the evidence chain for a response.
func (s *Store) LogEvidenceChain(ctx context.Context, chain EvidenceChain) error {
	hopIDs, err := json.Marshal(chain.HopIDs)
	if err != nil {
		return err
	}
	docIDs, err := json.Marshal(chain.DocumentIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO evidence_chains (id, response_id, hop_ids, document_ids, confidence_score)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		chain.ID, chain.ResponseID, string(hopIDs), string(docIDs), chain.ConfidenceScore)
	if err != nil {
		return fmt.Errorf("log evidence chain: %w", err)
	}
	return nil
}

// GetResponse loads a response row.
func (s *Store) GetResponse(ctx context.Context, id string) (*Response, error) {
	var resp Response
	err := s.db.GetContext(ctx, &resp, s.rebind(
		`SELECT id, query_id, content, timestamp, user_feedback, user_correction
		 FROM responses WHERE id = ?`), id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHop loads a hop row.
func (s *Store) GetHop(ctx context.Context, id string) (*Hop, error) {
	var hop Hop
	err := s.db.GetContext(ctx, &hop, s.rebind(
		`SELECT id, query_id, hop_order, sub_query, reasoning, status FROM hops WHERE id = ?`), id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &hop, nil
}

// DocumentGlobalScore aggregates feedback over all responses transitively
// linked to the document, then applies tanh compression and exponential
// time decay. No feedback yields 0.
func (s *Store) DocumentGlobalScore(ctx context.Context, documentID string) (float64, error) {
	type row struct {
		Feedback  int   `db:"user_feedback"`
		Timestamp int64 `db:"timestamp"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT r.user_feedback, r.timestamp
		 FROM responses r
		 WHERE r.user_feedback != 0
		   AND r.query_id IN (
			SELECT h.query_id FROM hops h
			JOIN hop_documents hd ON hd.hop_id = h.id
			WHERE hd.document_id = ?)`), documentID)
	if err != nil {
		return 0, fmt.Errorf("document global score: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	raw := 0
	var lastTime int64
	for _, r := range rows {
		raw += r.Feedback
		if r.Timestamp > lastTime {
			lastTime = r.Timestamp
		}
	}

	ageDays := float64(s.now()-lastTime) / 86400000.0
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Tanh(float64(raw)/10.0) * math.Exp(-feedbackDecayLambda*ageDays), nil
}

// SuccessfulTemplate returns the hop breakdown of a prior query with
// identical text whose response got positive feedback, most recent first.
// Empty when no such query exists.
func (s *Store) SuccessfulTemplate(ctx context.Context, queryText string) ([]TemplateStep, error) {
	var queryID string
	err := s.db.GetContext(ctx, &queryID, s.rebind(
		`SELECT q.id FROM queries q
		 JOIN responses r ON r.query_id = q.id
		 WHERE q.text = ? AND r.user_feedback = 1
		 ORDER BY q.timestamp DESC LIMIT 1`), queryText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template query: %w", err)
	}

	var steps []TemplateStep
	err = s.db.SelectContext(ctx, &steps, s.rebind(
		`SELECT hop_order, sub_query, reasoning FROM hops
		 WHERE query_id = ? ORDER BY hop_order ASC, id ASC`), queryID)
	if err != nil {
		return nil, fmt.Errorf("load template hops: %w", err)
	}
	return steps, nil
}

// Metrics computes the aggregate counters served by the debug endpoint.
func (s *Store) Metrics(ctx context.Context) (*DebugMetrics, error) {
	m := &DebugMetrics{}

	type feedbackRow struct {
		Positive int `db:"positive"`
		Negative int `db:"negative"`
	}
	var fb feedbackRow
	if err := s.db.GetContext(ctx, &fb, s.rebind(
		`SELECT
			COUNT(CASE WHEN user_feedback = 1 THEN 1 END) AS positive,
			COUNT(CASE WHEN user_feedback = -1 THEN 1 END) AS negative
		 FROM responses`)); err != nil {
		return nil, fmt.Errorf("feedback counts: %w", err)
	}
	m.PositiveFeedback = fb.Positive
	m.NegativeFeedback = fb.Negative
	m.TotalFeedback = fb.Positive + fb.Negative

	if err := s.db.GetContext(ctx, &m.TotalQueries, s.rebind(`SELECT COUNT(*) FROM queries`)); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &m.TotalHops, s.rebind(`SELECT COUNT(*) FROM hops`)); err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &m.TopFailedQueries, s.rebind(
		`SELECT sub_query, COUNT(*) AS count FROM hops
		 WHERE status = 'failed'
		 GROUP BY sub_query ORDER BY count DESC, sub_query ASC LIMIT 5`)); err != nil {
		return nil, fmt.Errorf("top failed sub-queries: %w", err)
	}

	if err := s.db.SelectContext(ctx, &m.TopNegativeDocs, s.rebind(
		`SELECT hd.document_id, COUNT(*) AS count
		 FROM hop_documents hd
		 JOIN hops h ON h.id = hd.hop_id
		 JOIN responses r ON r.query_id = h.query_id
		 WHERE r.user_feedback = -1
		 GROUP BY hd.document_id ORDER BY count DESC, hd.document_id ASC LIMIT 5`)); err != nil {
		return nil, fmt.Errorf("top negative documents: %w", err)
	}

	return m, nil
}
