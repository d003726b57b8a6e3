package vectordb

// Match is one raw hit from the vector index.
type Match struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// UpsertItem is a single point to write into the index.
type UpsertItem struct {
	ID       string                 `json:"id"`
	Vector   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// queryRequest is the Pinecone query wire format.
type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

type upsertRequest struct {
	Vectors   []UpsertItem `json:"vectors"`
	Namespace string       `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}
