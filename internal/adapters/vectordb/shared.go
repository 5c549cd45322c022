package vectordb

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// OpenObserver is told about every attempt to open the index.
type OpenObserver func(err error)

// SharedIndex opens the index lazily and shares the handle across requests.
// Invalidate drops the handle; it is closed once the last request releases it.
type SharedIndex struct {
	opener   ports.IndexOpener
	embedder ports.EmbeddingService
	observe  OpenObserver
	logger   *zap.Logger

	mu      sync.Mutex
	current *sharedHandle
}

type sharedHandle struct {
	index ports.VectorIndex
	refs  int
	stale bool
}

// NewSharedIndex creates a provider that opens the index on first use.
func NewSharedIndex(opener ports.IndexOpener, embedder ports.EmbeddingService, observe OpenObserver, logger *zap.Logger) *SharedIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SharedIndex{opener: opener, embedder: embedder, observe: observe, logger: logger}
}

// Acquire returns the shared handle, opening it if needed.
func (s *SharedIndex) Acquire(ctx context.Context) (ports.VectorIndex, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		index, err := s.opener.Open(ctx, s.embedder)
		if s.observe != nil {
			s.observe(err)
		}
		if err != nil {
			return nil, nil, err
		}
		s.current = &sharedHandle{index: index}
	}

	h := s.current
	h.refs++
	var once sync.Once
	return h.index, func() { once.Do(func() { s.release(h) }) }, nil
}

func (s *SharedIndex) release(h *sharedHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.refs--
	if h.stale && h.refs == 0 {
		s.closeHandle(h)
	}
}

// Invalidate forces the next Acquire to reopen the index.
func (s *SharedIndex) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	h := s.current
	s.current = nil
	h.stale = true
	if h.refs == 0 {
		s.closeHandle(h)
	}
	s.logger.Info("index handle invalidated")
}

// Close releases the shared handle.
func (s *SharedIndex) Close() error {
	s.Invalidate()
	return nil
}

func (s *SharedIndex) closeHandle(h *sharedHandle) {
	if err := h.index.Close(); err != nil {
		s.logger.Warn("closing index", zap.Error(err))
	}
}

// PerRequestIndex opens a fresh handle for every request and closes it on release.
type PerRequestIndex struct {
	opener   ports.IndexOpener
	embedder ports.EmbeddingService
	observe  OpenObserver
	logger   *zap.Logger
}

// NewPerRequestIndex creates a provider without sharing.
func NewPerRequestIndex(opener ports.IndexOpener, embedder ports.EmbeddingService, observe OpenObserver, logger *zap.Logger) *PerRequestIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerRequestIndex{opener: opener, embedder: embedder, observe: observe, logger: logger}
}

// Acquire opens the index.
func (p *PerRequestIndex) Acquire(ctx context.Context) (ports.VectorIndex, func(), error) {
	index, err := p.opener.Open(ctx, p.embedder)
	if p.observe != nil {
		p.observe(err)
	}
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return index, func() {
		once.Do(func() {
			if err := index.Close(); err != nil {
				p.logger.Warn("closing index", zap.Error(err))
			}
		})
	}, nil
}
