package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fluxgen/internal/coordinator"
)

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{ID: id, Content: "content " + id}
	}
	return out
}

func failOn(bad string) Task {
	return func(_ context.Context, it Item) (any, error) {
		if it.ID == bad {
			return nil, errors.New("model refused")
		}
		return "ok " + it.ID, nil
	}
}

func TestRunPartialSuccess(t *testing.T) {
	r := NewRunner()
	rep, err := r.Run(context.Background(), items("a", "b", "c"), failOn("b"))
	require.NoError(t, err)

	require.Len(t, rep.Results, 3)
	assert.Equal(t, 2, rep.Succeeded())
	assert.Equal(t, []string{"b: model refused"}, rep.Errors)
	assert.Equal(t, "ok c", rep.Results[2].Output)
	assert.NotEmpty(t, rep.RunID)
}

func TestRunSequentialOrder(t *testing.T) {
	var seen []string
	task := func(_ context.Context, it Item) (any, error) {
		seen = append(seen, it.ID)
		return nil, nil
	}
	_, err := NewRunner().Run(context.Background(), items("x", "y", "z"), task)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, seen)
}

func TestRunParallelKeepsIndexOrder(t *testing.T) {
	var inflight, peak atomic.Int32
	task := func(_ context.Context, it Item) (any, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		if it.ID == "3" {
			return nil, errors.New("boom")
		}
		return it.ID, nil
	}
	rep, err := NewRunner(WithConcurrency(2)).Run(context.Background(), items("1", "2", "3", "4", "5"), task)
	require.NoError(t, err)

	require.Len(t, rep.Results, 5)
	for i, res := range rep.Results {
		assert.Equal(t, i, res.Index)
	}
	assert.Equal(t, []string{"3: boom"}, rep.Errors)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunRecoversPanics(t *testing.T) {
	task := func(context.Context, Item) (any, error) { panic("bad item") }
	rep, err := NewRunner().Run(context.Background(), []Item{{Content: "no id"}}, task)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-1: task panic: bad item"}, rep.Errors)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := func(_ context.Context, it Item) (any, error) {
		if it.ID == "b" {
			cancel()
		}
		return nil, nil
	}
	rep, err := NewRunner().Run(ctx, items("a", "b", "c"), task)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rep.Results, 2)
}

func TestRunHoldsLease(t *testing.T) {
	coord := coordinator.NewMemoryCoordinator()
	held, err := coord.Acquire(context.Background(), "nightly", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	r := NewRunner(WithLease(coord, "nightly", time.Minute))
	calls := 0
	_, err = r.Run(ctx, items("a"), func(context.Context, Item) (any, error) { calls++; return nil, nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls)

	require.NoError(t, held.Release(context.Background()))
	rep, err := r.Run(context.Background(), items("a"), func(context.Context, Item) (any, error) { calls++; return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rep.Errors)

	// released after the run
	again, err := coord.Acquire(context.Background(), "nightly", time.Minute)
	require.NoError(t, err)
	_ = again.Release(context.Background())
}

func TestRunRenewsLease(t *testing.T) {
	coord := coordinator.NewMemoryCoordinator()
	r := NewRunner(WithLease(coord, "slow", 40*time.Millisecond))
	task := func(ctx context.Context, _ Item) (any, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, ctx.Err()
	}
	rep, err := r.Run(context.Background(), items("a"), task)
	require.NoError(t, err)
	assert.Empty(t, rep.Errors)
}

func TestReportRoundTrip(t *testing.T) {
	rep, err := NewRunner().Run(context.Background(), items("a", "b"), failOn("a"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, SaveReport(path, rep))
	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, loaded.RunID)
	assert.Equal(t, rep.Errors, loaded.Errors)
	assert.Len(t, loaded.Results, 2)
}

func TestLoadItems(t *testing.T) {
	dir := t.TempDir()
	jsonl := filepath.Join(dir, "items.jsonl")
	require.NoError(t, os.WriteFile(jsonl, []byte(`{"id":"1","content":"first","content_type":"blog"}

{"id":"2","content":"second"}
`), 0o644))
	got, err := LoadItems(jsonl)
	require.NoError(t, err)
	assert.Equal(t, []Item{{ID: "1", Content: "first", ContentType: "blog"}, {ID: "2", Content: "second"}}, got)

	yml := filepath.Join(dir, "items.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("- id: a\n  content: hello\n  content_type: technical\n"), 0o644))
	got, err = LoadItems(yml)
	require.NoError(t, err)
	assert.Equal(t, []Item{{ID: "a", Content: "hello", ContentType: "technical"}}, got)

	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{not json}\n"), 0o644))
	_, err = LoadItems(bad)
	assert.ErrorContains(t, err, "line 1")
}
