package embed

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	ferrors "github.com/filesense/filesense/internal/errors"
)

// Gateway serializes access to an embedding provider. All calls funnel
// through a single worker goroutine so the provider sees at most one
// in-flight request at a time, and each call carries its own deadline.
//
// Local embedding backends degrade badly under concurrent requests;
// strict serialization keeps latency predictable when a folder walk and
// an interactive query both need vectors.
type Gateway struct {
	inner   Embedder
	timeout time.Duration
	logger  *slog.Logger

	requests chan gatewayRequest

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// gatewayRequest is one queued embedding call.
type gatewayRequest struct {
	ctx   context.Context
	texts []string
	reply chan gatewayReply
}

type gatewayReply struct {
	vectors [][]float32
	err     error
}

// Verify interface implementation at compile time
var _ Embedder = (*Gateway)(nil)

// NewGateway wraps inner with a serializing gateway. timeout bounds each
// embedding call; <= 0 uses DefaultTimeout.
func NewGateway(inner Embedder, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		inner:    inner,
		timeout:  timeout,
		logger:   logger,
		requests: make(chan gatewayRequest),
		done:     make(chan struct{}),
	}
	go g.run()
	return g
}

// run is the worker loop. Requests are served strictly in arrival order.
func (g *Gateway) run() {
	for {
		select {
		case <-g.done:
			return
		case req := <-g.requests:
			req.reply <- g.serve(req)
		}
	}
}

// serve executes one request against the inner embedder with the
// gateway's per-call deadline applied on top of the caller's context.
func (g *Gateway) serve(req gatewayRequest) gatewayReply {
	// The caller may have given up while queued.
	if err := req.ctx.Err(); err != nil {
		return gatewayReply{err: err}
	}

	callCtx, cancel := context.WithTimeout(req.ctx, g.timeout)
	defer cancel()

	start := time.Now()
	vectors, err := g.inner.EmbedBatch(callCtx, req.texts)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && req.ctx.Err() == nil {
			g.logger.Warn("embedding call timed out",
				"model", g.inner.ModelName(),
				"texts", len(req.texts),
				"timeout", g.timeout)
			return gatewayReply{err: ferrors.EmbeddingTimeout(err)}
		}
		return gatewayReply{err: err}
	}

	g.logger.Debug("embedded batch",
		"model", g.inner.ModelName(),
		"texts", len(req.texts),
		"duration", time.Since(start))
	return gatewayReply{vectors: vectors}
}

// submit queues one call and waits for its reply.
func (g *Gateway) submit(ctx context.Context, texts []string) ([][]float32, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ferrors.New(ferrors.ErrCodeInternal, "embedding gateway is closed", nil)
	}
	g.mu.Unlock()

	req := gatewayRequest{
		ctx:   ctx,
		texts: texts,
		reply: make(chan gatewayReply, 1),
	}

	select {
	case g.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.done:
		return nil, ferrors.New(ferrors.ErrCodeInternal, "embedding gateway is closed", nil)
	}

	select {
	case reply := <-req.reply:
		return reply.vectors, reply.err
	case <-ctx.Done():
		// The worker still finishes the call; the buffered reply
		// channel lets it move on without us.
		return nil, ctx.Err()
	}
}

// Embed generates embedding for a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.submit(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, ferrors.New(ferrors.ErrCodeInternal, "embedder returned wrong vector count", nil)
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts as one serialized call.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return g.submit(ctx, texts)
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (g *Gateway) Dimensions() int {
	return g.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (g *Gateway) ModelName() string {
	return g.inner.ModelName()
}

// Available checks if the embedder is ready (passthrough to inner).
func (g *Gateway) Available(ctx context.Context) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.mu.Unlock()
	return g.inner.Available(ctx)
}

// Close stops the worker and closes the inner embedder.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.done)
	g.mu.Unlock()
	return g.inner.Close()
}
