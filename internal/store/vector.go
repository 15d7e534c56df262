package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	ferrors "github.com/filesense/filesense/internal/errors"
)

// VectorIndex is an HNSW-backed cosine-similarity index over catalog
// record IDs. It is safe for concurrent use.
//
// Deletion is lazy: removed nodes stay in the graph but lose their ID
// mapping and are filtered out of results. This sidesteps graph
// corruption in coder/hnsw when the last node is deleted, at the cost
// of orphan nodes until the index is rebuilt.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	idMap    map[string]uint64  // record ID -> graph key
	keyMap   map[uint64]string  // graph key -> record ID
	seqMap   map[string]uint64  // record ID -> upsert sequence
	payloads map[string]Payload // record ID -> derived copy
	nextKey  uint64
	nextSeq  uint64

	closed bool
}

// vectorMetadata is the persisted sidecar for the graph file.
type vectorMetadata struct {
	IDMap    map[string]uint64
	SeqMap   map[string]uint64
	Payloads map[string]Payload
	NextKey  uint64
	NextSeq  uint64
	Config   VectorConfig
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex(cfg VectorConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:    graph,
		config:   cfg,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		seqMap:   make(map[string]uint64),
		payloads: make(map[string]Payload),
	}, nil
}

// Upsert inserts or replaces the vector and payload for id. A replaced
// vector takes a fresh upsert sequence, so among equal-score results
// the most recently written record wins.
func (s *VectorIndex) Upsert(ctx context.Context, id string, vector []float32, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ferrors.VectorStoreUnavailable(fmt.Errorf("index is closed"))
	}
	if len(vector) != s.config.Dimensions {
		return ferrors.New(ferrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", s.config.Dimensions, len(vector)), nil)
	}

	// Lazy-delete any existing node for this ID.
	if existingKey, exists := s.idMap[id]; exists {
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
	}

	key := s.nextKey
	s.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	s.graph.Add(hnsw.MakeNode(key, vec))

	s.idMap[id] = key
	s.keyMap[key] = id
	s.seqMap[id] = s.nextSeq
	s.payloads[id] = payload
	s.nextSeq++

	return nil
}

// Query returns up to k nearest records by cosine similarity, best
// first. Equal scores order by upsert recency, newest first.
func (s *VectorIndex) Query(ctx context.Context, query []float32, k int) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ferrors.VectorStoreUnavailable(fmt.Errorf("index is closed"))
	}
	if len(query) != s.config.Dimensions {
		return nil, ferrors.New(ferrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", s.config.Dimensions, len(query)), nil)
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for lazy-deleted nodes in the graph.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(normalized, k+orphans)

	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazy-deleted
		}
		// score = 1 - cosineDistance = cosine similarity, in [-1, 1]
		score := 1 - s.graph.Distance(normalized, node.Value)
		hits = append(hits, VectorHit{ID: id, Payload: s.payloads[id], Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return s.seqMap[hits[i].ID] > s.seqMap[hits[j].ID]
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes id from the index. Unknown IDs are a no-op.
func (s *VectorIndex) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ferrors.VectorStoreUnavailable(fmt.Errorf("index is closed"))
	}

	if key, exists := s.idMap[id]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.seqMap, id)
		delete(s.payloads, id)
	}
	return nil
}

// Contains reports whether id has a live vector.
func (s *VectorIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.idMap[id]
	return exists && !s.closed
}

// Count returns the number of live vectors.
func (s *VectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the configured vector dimensionality.
func (s *VectorIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the graph and its ID mappings to path and path+".meta",
// each written to a temp file and renamed into place.
func (s *VectorIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ferrors.VectorStoreUnavailable(fmt.Errorf("index is closed"))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *VectorIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := vectorMetadata{
		IDMap:    s.idMap,
		SeqMap:   s.seqMap,
		Payloads: s.payloads,
		NextKey:  s.nextKey,
		NextSeq:  s.nextSeq,
		Config:   s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mappings saved by Save. The persisted
// dimensionality must match the configured one; a mismatch means the
// embedding model changed and the index must be rebuilt.
func (s *VectorIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ferrors.VectorStoreUnavailable(fmt.Errorf("index is closed"))
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *VectorIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var meta vectorMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Config.Dimensions != s.config.Dimensions {
		return ferrors.New(ferrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index on disk has %d dimensions, embedder produces %d",
				meta.Config.Dimensions, s.config.Dimensions), nil)
	}

	s.idMap = meta.IDMap
	s.seqMap = meta.SeqMap
	if s.seqMap == nil {
		s.seqMap = make(map[string]uint64)
	}
	s.payloads = meta.Payloads
	if s.payloads == nil {
		s.payloads = make(map[string]Payload)
	}
	s.nextKey = meta.NextKey
	s.nextSeq = meta.NextSeq
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// SavedDimensions reads the dimensionality of a persisted index without
// loading it. Returns 0 when no index exists yet.
func SavedDimensions(path string) (int, error) {
	file, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var meta vectorMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

// Close releases the graph. Further calls fail.
func (s *VectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeInPlace scales v to unit length.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
