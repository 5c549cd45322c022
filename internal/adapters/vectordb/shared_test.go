package vectordb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

type countingIndex struct {
	mu     sync.Mutex
	closed int
}

func (c *countingIndex) Retrieve(ctx context.Context, question string, topK int) ([]entities.QueryResult, error) {
	return nil, nil
}

func (c *countingIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

type countingOpener struct {
	mu     sync.Mutex
	opened []*countingIndex
	err    error
}

func (o *countingOpener) Open(ctx context.Context, embedder ports.EmbeddingService) (ports.VectorIndex, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	idx := &countingIndex{}
	o.opened = append(o.opened, idx)
	return idx, nil
}

func TestSharedIndex_OpensOnce(t *testing.T) {
	opener := &countingOpener{}
	observed := 0
	shared := NewSharedIndex(opener, &keywordEmbedder{}, func(error) { observed++ }, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := shared.Acquire(context.Background())
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, opener.opened, 1)
	assert.Equal(t, 1, observed)
	assert.Zero(t, opener.opened[0].closed)
}

func TestSharedIndex_InvalidateWaitsForRelease(t *testing.T) {
	opener := &countingOpener{}
	shared := NewSharedIndex(opener, &keywordEmbedder{}, nil, nil)

	first, release, err := shared.Acquire(context.Background())
	require.NoError(t, err)

	shared.Invalidate()
	assert.Zero(t, opener.opened[0].closed, "handle in use must stay open")

	second, release2, err := shared.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	release()
	release() // idempotent
	assert.Equal(t, 1, opener.opened[0].closed)

	release2()
	require.NoError(t, shared.Close())
	assert.Equal(t, 1, opener.opened[1].closed)
}

func TestSharedIndex_OpenErrorIsNotCached(t *testing.T) {
	boom := errors.New("boom")
	opener := &countingOpener{err: boom}
	var seen []error
	shared := NewSharedIndex(opener, &keywordEmbedder{}, func(err error) { seen = append(seen, err) }, nil)

	_, _, err := shared.Acquire(context.Background())
	assert.ErrorIs(t, err, boom)

	opener.err = nil
	_, release, err := shared.Acquire(context.Background())
	require.NoError(t, err)
	release()

	require.Len(t, seen, 2)
	assert.ErrorIs(t, seen[0], boom)
	assert.NoError(t, seen[1])
}

func TestPerRequestIndex_OpensAndClosesEachTime(t *testing.T) {
	opener := &countingOpener{}
	provider := NewPerRequestIndex(opener, &keywordEmbedder{}, nil, nil)

	for i := 0; i < 3; i++ {
		_, release, err := provider.Acquire(context.Background())
		require.NoError(t, err)
		release()
	}

	require.Len(t, opener.opened, 3)
	for _, idx := range opener.opened {
		assert.Equal(t, 1, idx.closed)
	}
}
