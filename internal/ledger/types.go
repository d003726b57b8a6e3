package ledger

// Query is one user question entering knowledge-mode retrieval.
type Query struct {
	ID        string `db:"id" json:"id"`
	Text      string `db:"text" json:"text"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`
}

// Hop is one retrieval round for one sub-query within a run.
type Hop struct {
	ID       string `db:"id" json:"id"`
	QueryID  string `db:"query_id" json:"query_id"`
	HopOrder int    `db:"hop_order" json:"hop_order"`
	SubQuery string `db:"sub_query" json:"sub_query"`
	Reasoning string `db:"reasoning" json:"reasoning"`
	Status   string `db:"status" json:"status"`
}

// Hop status values. Only the weakest-link diagnosis sets "failed".
const (
	HopStatusPending = "pending"
	HopStatusFailed  = "failed"
)

// HopDocument records one document surfaced by one hop, in rank order.
type HopDocument struct {
	ID           string  `db:"id" json:"id"`
	HopID        string  `db:"hop_id" json:"hop_id"`
	DocumentID   string  `db:"document_id" json:"document_id"`
	DenseScore   float64 `db:"dense_score" json:"dense_score"`
	SparseScore  float64 `db:"sparse_score" json:"sparse_score"`
	RankPosition int     `db:"rank_position" json:"rank_position"`
}

// Response is the answer produced for a query. UserFeedback is 0 until the
// feedback path finalises it to +1 or -1 exactly once.
type Response struct {
	ID             string  `db:"id" json:"id"`
	QueryID        string  `db:"query_id" json:"query_id"`
	Content        string  `db:"content" json:"content"`
	Timestamp      int64   `db:"timestamp" json:"timestamp"`
	UserFeedback   int     `db:"user_feedback" json:"user_feedback"`
	UserCorrection *string `db:"user_correction" json:"user_correction,omitempty"`
}

// EvidenceChain links a response to the hops and documents that supported it.
// Hop and document id sequences are stored as JSON arrays.
type EvidenceChain struct {
	ID              string   `json:"id"`
	ResponseID      string   `json:"response_id"`
	HopIDs          []string `json:"hop_ids"`
	DocumentIDs     []string `json:"document_ids"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// TemplateStep is one hop of a previously successful decomposition.
type TemplateStep struct {
	HopOrder  int    `db:"hop_order" json:"hop_order"`
	SubQuery  string `db:"sub_query" json:"sub_query"`
	Reasoning string `db:"reasoning" json:"reasoning"`
}

// SubQueryCount aggregates failed hops by sub-query text.
type SubQueryCount struct {
	SubQuery string `db:"sub_query" json:"sub_query"`
	Count    int    `db:"count" json:"count"`
}

// DocumentCount aggregates documents by negative-feedback associations.
type DocumentCount struct {
	DocumentID string `db:"document_id" json:"document_id"`
	Count      int    `db:"count" json:"count"`
}

// DebugMetrics is the aggregate view served by the debug endpoint.
type DebugMetrics struct {
	PositiveFeedback  int             `json:"positive_feedback"`
	NegativeFeedback  int             `json:"negative_feedback"`
	TotalFeedback     int             `json:"total_feedback"`
	TotalQueries      int             `json:"total_queries"`
	TotalHops         int             `json:"total_hops"`
	TopFailedQueries  []SubQueryCount `json:"top_failed_queries"`
	TopNegativeDocs   []DocumentCount `json:"top_negative_documents"`
}
