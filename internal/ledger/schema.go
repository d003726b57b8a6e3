package ledger

// Schema shared by sqlite and postgres. ON CONFLICT DO NOTHING keeps every
// write idempotent under caller-supplied UUID keys.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS queries (
		id        TEXT PRIMARY KEY,
		text      TEXT NOT NULL,
		timestamp BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hops (
		id        TEXT PRIMARY KEY,
		query_id  TEXT NOT NULL REFERENCES queries(id),
		hop_order INTEGER NOT NULL CHECK (hop_order >= 0),
		sub_query TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		status    TEXT NOT NULL DEFAULT 'pending'
	)`,
	`CREATE TABLE IF NOT EXISTS hop_documents (
		id            TEXT PRIMARY KEY,
		hop_id        TEXT NOT NULL REFERENCES hops(id),
		document_id   TEXT NOT NULL,
		dense_score   DOUBLE PRECISION NOT NULL,
		sparse_score  DOUBLE PRECISION NOT NULL,
		rank_position INTEGER NOT NULL CHECK (rank_position >= 1)
	)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id              TEXT PRIMARY KEY,
		query_id        TEXT NOT NULL REFERENCES queries(id),
		content         TEXT NOT NULL,
		timestamp       BIGINT NOT NULL,
		user_feedback   INTEGER NOT NULL DEFAULT 0,
		user_correction TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS evidence_chains (
		id               TEXT PRIMARY KEY,
		response_id      TEXT NOT NULL REFERENCES responses(id),
		hop_ids          TEXT NOT NULL,
		document_ids     TEXT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hops_query ON hops(query_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hop_documents_hop ON hop_documents(hop_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hop_documents_document ON hop_documents(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_query ON responses(query_id)`,
	`CREATE INDEX IF NOT EXISTS idx_evidence_chains_response ON evidence_chains(response_id)`,
	`CREATE INDEX IF NOT EXISTS idx_queries_text ON queries(text)`,
}
