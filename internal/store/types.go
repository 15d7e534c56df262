// Package store holds the two search indexes: an HNSW vector index for
// semantic queries and a Bleve index for exact-text queries. Both are
// keyed by catalog record ID.
package store

// Payload is the derived record copy stored beside each vector. The
// catalog remains the source of truth; this copy exists so hits can be
// rendered even while a catalog mutation is in flight.
type Payload struct {
	Path    string
	Name    string
	Summary string
}

// VectorHit is one vector search result.
type VectorHit struct {
	// ID is the catalog record ID.
	ID string

	// Payload is the record copy stored at upsert time.
	Payload Payload

	// Score is the cosine similarity with the query, in [-1, 1].
	// 1 means identical direction, 0 unrelated, -1 opposite.
	Score float32
}

// TextHit is one exact-text search result.
type TextHit struct {
	// ID is the catalog record ID.
	ID string

	// Score is the BM25 relevance score (unbounded, higher is better).
	Score float64
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Dimensions is the fixed embedding dimensionality. All vectors
	// added to the index must have exactly this length.
	Dimensions int

	// M is the HNSW connectivity parameter.
	M int

	// EfSearch is the HNSW search beam width.
	EfSearch int
}
