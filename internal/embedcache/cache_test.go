package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns [len(text), 1] and records every batch it sees.
type countingEmbedder struct {
	batches [][]string
	err     error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCache_MissThenHit(t *testing.T) {
	_, client := setup(t)
	inner := &countingEmbedder{}
	c := New(inner, client, "m1")
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"alpha", "be"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5, 1}, {2, 1}}, first)
	require.Len(t, inner.batches, 1)

	second, err := c.Embed(ctx, []string{"be", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 1}, {5, 1}}, second)
	assert.Len(t, inner.batches, 1, "second call must be served from cache")
}

func TestCache_PartialHitEmbedsOnlyMisses(t *testing.T) {
	_, client := setup(t)
	inner := &countingEmbedder{}
	c := New(inner, client, "m1")
	ctx := context.Background()

	_, err := c.Embed(ctx, []string{"cached"})
	require.NoError(t, err)

	got, err := c.Embed(ctx, []string{"new", "cached", "new"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1}, {6, 1}, {3, 1}}, got)
	require.Len(t, inner.batches, 2)
	assert.Equal(t, []string{"new"}, inner.batches[1], "duplicates are embedded once")
}

func TestCache_ModelNamespacesKeys(t *testing.T) {
	_, client := setup(t)
	inner := &countingEmbedder{}
	ctx := context.Background()

	_, err := New(inner, client, "m1").Embed(ctx, []string{"x"})
	require.NoError(t, err)
	_, err = New(inner, client, "m2").Embed(ctx, []string{"x"})
	require.NoError(t, err)
	assert.Len(t, inner.batches, 2)
}

func TestCache_TTL(t *testing.T) {
	mr, client := setup(t)
	inner := &countingEmbedder{}
	c := New(inner, client, "m1", WithTTL(time.Minute))
	ctx := context.Background()

	_, err := c.Embed(ctx, []string{"x"})
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = c.Embed(ctx, []string{"x"})
	require.NoError(t, err)
	assert.Len(t, inner.batches, 2, "expired entry must be re-embedded")
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	mr, client := setup(t)
	mr.Close()
	inner := &countingEmbedder{}

	got, err := New(inner, client, "m1").Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1}}, got)
}

func TestCache_CorruptEntryIgnored(t *testing.T) {
	mr, client := setup(t)
	inner := &countingEmbedder{}
	c := New(inner, client, "m1")

	require.NoError(t, mr.Set(c.key("abc"), "xyz"))
	got, err := c.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1}}, got)
	assert.Len(t, inner.batches, 1)
}

func TestCache_InnerErrorPropagates(t *testing.T) {
	_, client := setup(t)
	boom := errors.New("provider down")
	_, err := New(&countingEmbedder{err: boom}, client, "m1").Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)
}

func TestCache_Counter(t *testing.T) {
	_, client := setup(t)
	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cache_total"}, []string{"result"})
	c := New(&countingEmbedder{}, client, "m1", WithCounter(total))
	ctx := context.Background()

	_, err := c.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = c.Embed(ctx, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(total.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(total.WithLabelValues("hit")))
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = client.Close()

	_, err = Open(context.Background(), "not a url")
	assert.Error(t, err)
}
