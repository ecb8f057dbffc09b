package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
)

func acceptedResult(hash string) entity.ExtractionResult {
	return entity.ExtractionResult{
		ID:          uuid.New(),
		DocumentID:  uuid.New(),
		ContentHash: hash,
		Provider:    constants.ProviderGemini,
		Model:       "gemini-2.0-flash",
		Confidence:  0.97,
		Verdict:     constants.VerdictAccept,
	}
}

func TestCacheGetPut(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	want := acceptedResult("abc")
	c.Put("abc", want)

	got, ok := c.Get("abc")
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 1, c.Len())
}

func TestCachePutRefusesUnvalidatedResults(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	for _, verdict := range []constants.Verdict{constants.VerdictReview, constants.VerdictReject, ""} {
		res := acceptedResult("abc")
		res.Verdict = verdict
		c.Put("abc", res)
	}

	_, ok := c.Get("abc")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("abc", acceptedResult("abc"))

	c.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, ok := c.Get("abc")
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, ok = c.Get("abc")
	assert.False(t, ok)
	// Expired entry is evicted, not just hidden.
	assert.Equal(t, 0, c.Len())
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(Config{TTL: time.Hour, MaxEntries: 3}, nil)

	for i := 0; i < 3; i++ {
		h := fmt.Sprintf("hash-%d", i)
		c.Put(h, acceptedResult(h))
	}
	// Touch hash-0 so hash-1 becomes the eviction candidate.
	_, ok := c.Get("hash-0")
	require.True(t, ok)

	c.Put("hash-3", acceptedResult("hash-3"))
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get("hash-1")
	assert.False(t, ok)
	_, ok = c.Get("hash-0")
	assert.True(t, ok)
	_, ok = c.Get("hash-3")
	assert.True(t, ok)
}

func TestCacheOverwriteSameHash(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	first := acceptedResult("abc")
	second := acceptedResult("abc")
	c.Put("abc", first)
	c.Put("abc", second)

	got, ok := c.Get("abc")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, 1, c.Len())
}

func TestFetchHitSkipsCompute(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)
	want := acceptedResult("abc")
	c.Put("abc", want)

	got, fromCache, err := c.Fetch(context.Background(), "abc", func(context.Context) (entity.ExtractionResult, bool, error) {
		t.Fatal("compute must not run on a hit")
		return entity.ExtractionResult{}, false, nil
	})
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, want.ID, got.ID)
}

func TestFetchSingleFlight(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	var computes atomic.Int32
	release := make(chan struct{})
	want := acceptedResult("abc")

	compute := func(context.Context) (entity.ExtractionResult, bool, error) {
		computes.Add(1)
		<-release
		return want, true, nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]entity.ExtractionResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.Fetch(context.Background(), "abc", compute)
		}(i)
	}

	// Give the callers time to coalesce onto the single flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computes.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, want.ID, results[i].ID)
	}
	// The shared result was cached once.
	got, ok := c.Get("abc")
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
}

func TestFetchUncacheableResultNotStored(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	res := acceptedResult("abc")
	res.Verdict = constants.VerdictReview

	got, fromCache, err := c.Fetch(context.Background(), "abc", func(context.Context) (entity.ExtractionResult, bool, error) {
		return res, false, nil
	})
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, res.ID, got.ID)

	_, ok := c.Get("abc")
	assert.False(t, ok)
}

func TestFetchComputeError(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	wantErr := fmt.Errorf("provider down")
	_, _, err := c.Fetch(context.Background(), "abc", func(context.Context) (entity.ExtractionResult, bool, error) {
		return entity.ExtractionResult{}, false, wantErr
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "provider down")
	assert.Equal(t, 0, c.Len())
}

func TestFetchWaiterCancellation(t *testing.T) {
	c := New(Config{TTL: time.Hour}, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	owner := make(chan error, 1)
	go func() {
		_, _, err := c.Fetch(context.Background(), "abc", func(context.Context) (entity.ExtractionResult, bool, error) {
			close(started)
			<-release
			return acceptedResult("abc"), true, nil
		})
		owner <- err
	}()

	<-started
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Fetch(ctx, "abc", func(context.Context) (entity.ExtractionResult, bool, error) {
		return acceptedResult("abc"), true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
