package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/filesense/filesense/internal/broadcast"
	"github.com/filesense/filesense/internal/catalog"
	"github.com/filesense/filesense/internal/config"
	"github.com/filesense/filesense/internal/embed"
	"github.com/filesense/filesense/internal/extract"
	"github.com/filesense/filesense/internal/index"
	"github.com/filesense/filesense/internal/query"
	"github.com/filesense/filesense/internal/store"
	"github.com/filesense/filesense/internal/watcher"
)

// vectorIndexFile is the HNSW graph file inside the data dir; its gob
// metadata sidecar lives next to it.
const vectorIndexFile = "vectors.hnsw"

// stack is the assembled service: every component wired to the same
// catalog and indexes. serve, index, and search all build one.
type stack struct {
	cfg    *config.Config
	logger *slog.Logger

	embedder    embed.Embedder
	catalog     *catalog.Catalog
	db          *catalog.Store
	vectors     *store.VectorIndex
	texts       *store.TextIndex
	pump        *watcher.Pump
	bus         *broadcast.Broadcaster
	coordinator *index.Coordinator
	engine      *query.Engine

	vectorPath string
}

// newStack builds the full component graph. Vector index creation
// failure is fatal; a saved index that cannot be loaded (for example
// after a dimension change) is dropped and rebuilt from scratch.
func newStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	embedder, err := embed.New(ctx, cfg.Embeddings, logger)
	if err != nil {
		return nil, err
	}

	vectors, err := store.NewVectorIndex(store.VectorConfig{Dimensions: embedder.Dimensions()})
	if err != nil {
		return nil, err
	}
	vectorPath := filepath.Join(cfg.Paths.DataDir, vectorIndexFile)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if loadErr := vectors.Load(vectorPath); loadErr != nil {
			logger.Warn("saved vector index unusable, rebuilding",
				"path", vectorPath, "error", loadErr)
			vectors, err = store.NewVectorIndex(store.VectorConfig{Dimensions: embedder.Dimensions()})
			if err != nil {
				return nil, err
			}
		}
	}

	texts, err := store.NewTextIndex("")
	if err != nil {
		return nil, err
	}

	db, err := catalog.OpenStore(cfg.Paths.DataDir)
	if err != nil {
		return nil, err
	}

	cat := catalog.New()
	if loaded, loadErr := db.LoadAll(ctx, cat); loadErr != nil {
		logger.Warn("catalog load failed, starting empty", "error", loadErr)
	} else if loaded > 0 {
		logger.Info("catalog loaded", "records", loaded)
	}

	// LoadAll clears embedding flags; restore them for records whose
	// vectors survived in the saved graph.
	for _, rec := range cat.List() {
		if vectors.Contains(rec.ID) {
			rec.HasEmbedding = true
			cat.Put(*rec)
		}
	}

	pump, err := watcher.NewPump(watcher.Options{
		DebounceWindow:  cfg.Watch.Debounce,
		EventBufferSize: cfg.Watch.EventBufferSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	bus := broadcast.New(cfg.Server.SessionQueueSize, logger)

	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		Extractor: extract.New(cfg.Watch.MaxFileSize),
		Embedder:  embedder,
		Catalog:   cat,
		DB:        db,
		Vectors:   vectors,
		Texts:     texts,
		Pump:      pump,
		Bus:       bus,
		Logger:    logger,
	})

	engine := query.NewEngine(embedder, vectors, texts, cat, query.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, logger)

	return &stack{
		cfg:         cfg,
		logger:      logger,
		embedder:    embedder,
		catalog:     cat,
		db:          db,
		vectors:     vectors,
		texts:       texts,
		pump:        pump,
		bus:         bus,
		coordinator: coordinator,
		engine:      engine,
		vectorPath:  vectorPath,
	}, nil
}

// Close persists the vector index and releases everything.
func (s *stack) Close() {
	_ = s.pump.Stop()

	if err := s.vectors.Save(s.vectorPath); err != nil {
		s.logger.Warn("vector index save failed", "path", s.vectorPath, "error", err)
	}
	if err := s.texts.Close(); err != nil {
		s.logger.Warn("text index close failed", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("catalog db close failed", "error", err)
	}
	if err := s.embedder.Close(); err != nil {
		s.logger.Warn("embedder close failed", "error", err)
	}
	s.bus.Close()
}
