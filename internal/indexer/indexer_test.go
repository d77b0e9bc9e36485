package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
)

// item is a raw test input: the id plus the vector its embedding should return.
type item struct {
	id  string
	vec []float32
	err error
}

func itemID(it item) (string, error) { return it.id, nil }

func embedItem(_ context.Context, it item) ([]float32, error) {
	if it.err != nil {
		return nil, it.err
	}
	return slices.Clone(it.vec), nil
}

func newMemStore(t *testing.T, dim int) storage.Store {
	t.Helper()
	s, err := storage.NewMemoryStore(dim)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newIndexer(t *testing.T, store storage.Store, embed EmbedFunc[item], opts ...Option) *Indexer[item] {
	t.Helper()
	x, err := New(store, itemID, embed, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return x
}

func TestNew_requiresDependencies(t *testing.T) {
	store := newMemStore(t, 2)
	if _, err := New[item](nil, itemID, embedItem); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := New[item](store, nil, embedItem); err == nil {
		t.Error("expected error for nil id function")
	}
	if _, err := New[item](store, itemID, nil); err == nil {
		t.Error("expected error for nil embed function")
	}
}

func TestRun_addsSkipsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, 2)
	if err := store.Insert(ctx, "a", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	x := newIndexer(t, store, embedItem)
	items := []item{
		{id: "a", vec: []float32{0, 1}},
		{id: "b", vec: []float32{3, 4}},
		{id: "c", vec: []float32{0, 2}},
	}

	report, err := x.Run(ctx, slices.Values(items))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(report.Skipped, []string{"a"}) || !slices.Equal(report.Added, []string{"b", "c"}) {
		t.Errorf("first run: added=%v skipped=%v", report.Added, report.Skipped)
	}
	rec, err := store.Get(ctx, "a")
	if err != nil || rec.Vector[0] != 1 {
		t.Errorf("existing record must be untouched: %v %v", rec, err)
	}

	again, err := x.Run(ctx, slices.Values(items))
	if err != nil {
		t.Fatal(err)
	}
	if again.AddedCount() != 0 || again.SkippedCount() != 3 || again.FailedCount() != 0 {
		t.Errorf("second run should skip everything: %+v", again)
	}
	if n, _ := store.Count(ctx); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestRun_normalizesBeforeInsert(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, 2)
	x := newIndexer(t, store, embedItem)
	if _, err := x.Run(ctx, slices.Values([]item{{id: "b", vec: []float32{3, 4}}})); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(rec.Vector[0])-0.6) > 1e-6 || math.Abs(float64(rec.Vector[1])-0.8) > 1e-6 {
		t.Errorf("stored vector: got %v, want [0.6 0.8]", rec.Vector)
	}
	if !vector.IsUnit(rec.Vector) {
		t.Error("stored vector is not unit length")
	}
}

func TestRun_sameIDSkippedBeforeEmbedding(t *testing.T) {
	var calls atomic.Int32
	embed := func(ctx context.Context, it item) ([]float32, error) {
		calls.Add(1)
		return embedItem(ctx, it)
	}
	x := newIndexer(t, newMemStore(t, 2), embed)
	report, err := x.Run(context.Background(), slices.Values([]item{
		{id: "dup", vec: []float32{1, 0}},
		{id: "dup", vec: []float32{0, 1}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("embed calls: got %d, want 1", calls.Load())
	}
	if !slices.Equal(report.Added, []string{"dup"}) || !slices.Equal(report.Skipped, []string{"dup"}) {
		t.Errorf("added=%v skipped=%v", report.Added, report.Skipped)
	}
}

func TestRun_sameIDRetriedAfterFailure(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			ctx := context.Background()
			store := newMemStore(t, 2)
			x := newIndexer(t, store, embedItem, WithWorkers(workers))
			report, err := x.Run(ctx, slices.Values([]item{
				{id: "dup", err: errors.New("unreadable")},
				{id: "dup", vec: []float32{0, 1}},
				{id: "zero", vec: []float32{0, 0}},
				{id: "zero", vec: []float32{2, 0}},
				{id: "dup", vec: []float32{1, 0}},
			}))
			if err != nil {
				t.Fatal(err)
			}
			kinds := make([]models.OutcomeKind, 0, report.Total())
			for _, o := range report.Outcomes {
				kinds = append(kinds, o.Kind)
			}
			want := []models.OutcomeKind{
				models.OutcomeFailed, models.OutcomeAdded,
				models.OutcomeFailed, models.OutcomeAdded,
				models.OutcomeSkipped,
			}
			if !slices.Equal(kinds, want) {
				t.Fatalf("outcomes: got %v, want %v", kinds, want)
			}
			for _, id := range []string{"dup", "zero"} {
				if ok, _ := store.Contains(ctx, id); !ok {
					t.Errorf("%s should be stored after the retry", id)
				}
			}
			rec, _ := store.Get(ctx, "dup")
			if rec.Vector[1] != 1 {
				t.Errorf("dup should hold the first successful vector, got %v", rec.Vector)
			}
		})
	}
}

func TestRun_perItemFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, 2)
	failing := func(it item) (string, error) {
		if it.id == "noid" {
			return "", errors.New("unreadable")
		}
		return it.id, nil
	}
	x, err := New(store, failing, embedItem)
	if err != nil {
		t.Fatal(err)
	}
	items := []item{
		{id: "ok1", vec: []float32{1, 1}},
		{id: "embed", err: errors.New("model crashed")},
		{id: "zero", vec: []float32{0, 0}},
		{id: "short", vec: []float32{1}},
		{id: "noid", vec: []float32{1, 0}},
		{id: "ok2", vec: []float32{-1, 0}},
	}
	report, err := x.Run(ctx, slices.Values(items))
	if err != nil {
		t.Fatalf("per-item failures must not escape: %v", err)
	}
	if !slices.Equal(report.Added, []string{"ok1", "ok2"}) {
		t.Errorf("added: %v", report.Added)
	}
	if report.FailedCount() != 4 || report.Total() != len(items) {
		t.Fatalf("failures: %+v", report.Failures)
	}
	want := []struct {
		id  string
		err error
	}{
		{"embed", models.ErrEmbeddingFailure},
		{"zero", models.ErrDegenerateVector},
		{"short", models.ErrDimensionMismatch},
	}
	for i, w := range want {
		f := report.Failures[i]
		if f.ID != w.id || !errors.Is(f.Reason, w.err) {
			t.Errorf("failure %d: got %s (%v), want %s (%v)", i, f.ID, f.Reason, w.id, w.err)
		}
	}
	if report.Failures[3].Message() == "" {
		t.Error("id failure should carry a reason")
	}
	for _, id := range []string{"embed", "zero", "short"} {
		if ok, _ := store.Contains(ctx, id); ok {
			t.Errorf("%s should not be stored", id)
		}
	}
}

func TestRun_concurrentMatchesSequential(t *testing.T) {
	const n = 300
	items := make([]item, n)
	for i := range items {
		it := item{id: fmt.Sprintf("id-%03d", i%250), vec: []float32{float32(i%7) + 1, float32(i % 5), float32(i % 3)}}
		switch {
		case i%17 == 0:
			it.err = errors.New("boom")
		case i%23 == 0:
			it.vec = []float32{0, 0, 0}
		}
		items[i] = it
	}

	run := func(opts ...Option) *models.IngestReport {
		store := newMemStore(t, 3)
		_ = store.Insert(context.Background(), "id-010", []float32{1, 0, 0})
		report, err := newIndexer(t, store, embedItem, opts...).Run(context.Background(), slices.Values(items))
		if err != nil {
			t.Fatal(err)
		}
		return report
	}
	seq := run()
	par := run(WithWorkers(8), WithRateLimit(1e6))

	if seq.Total() != n || par.Total() != n {
		t.Fatalf("totals: %d vs %d", seq.Total(), par.Total())
	}
	for i := range seq.Outcomes {
		a, b := seq.Outcomes[i], par.Outcomes[i]
		if a.Index != i+1 || a.Index != b.Index || a.ID != b.ID || a.Kind != b.Kind {
			t.Fatalf("outcome %d differs: %+v vs %+v", i, a, b)
		}
	}
	if !slices.Equal(seq.Added, par.Added) || !slices.Equal(seq.Skipped, par.Skipped) {
		t.Error("added/skipped lists differ")
	}
}

func TestRun_progressInOrder(t *testing.T) {
	var seen []int
	x := newIndexer(t, newMemStore(t, 1), embedItem, WithWorkers(4), WithProgress(func(o models.Outcome) {
		seen = append(seen, o.Index)
	}))
	items := []item{{id: "a", vec: []float32{1}}, {id: "b", vec: []float32{2}}, {id: "a", vec: []float32{3}}, {id: "c", vec: []float32{-1}}}
	if _, err := x.Run(context.Background(), slices.Values(items)); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seen, []int{1, 2, 3, 4}) {
		t.Errorf("progress order: %v", seen)
	}
}

func TestRun_cancellation(t *testing.T) {
	x := newIndexer(t, newMemStore(t, 1), embedItem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if report, err := x.Run(ctx, slices.Values([]item{{id: "a", vec: []float32{1}}})); !errors.Is(err, context.Canceled) || report != nil {
		t.Errorf("cancelled before start: report=%v err=%v", report, err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	var items iter.Seq[item] = func(yield func(item) bool) {
		for i := 0; i < 10; i++ {
			if i == 3 {
				cancel()
			}
			if !yield(item{id: fmt.Sprint(i), vec: []float32{1}}) {
				return
			}
		}
	}
	report, err := x.Run(ctx, items)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if report == nil || report.Total() != 3 {
		t.Fatalf("partial report: %+v", report)
	}
}

// cancelAwareStore fails inserts made with a cancelled context, like a SQL driver does.
type cancelAwareStore struct {
	storage.Store
}

func (s cancelAwareStore) Insert(ctx context.Context, id string, vec []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Insert(ctx, id, vec)
}

func TestRun_commitsEmbeddedItemsAfterCancel(t *testing.T) {
	store := cancelAwareStore{newMemStore(t, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	embed := func(ctx context.Context, it item) ([]float32, error) {
		if it.id == "b" {
			cancel()
		}
		return embedItem(ctx, it)
	}
	x := newIndexer(t, store, embed)
	report, _ := x.Run(ctx, slices.Values([]item{{id: "a", vec: []float32{1}}, {id: "b", vec: []float32{2}}}))
	if report == nil || !slices.Equal(report.Added, []string{"a", "b"}) || report.FailedCount() != 0 {
		t.Fatalf("embedded items should still be stored: %+v", report)
	}
	if ok, _ := store.Contains(context.Background(), "b"); !ok {
		t.Error("b should be stored")
	}
}

func TestIngest_single(t *testing.T) {
	ctx := context.Background()
	x := newIndexer(t, newMemStore(t, 2), embedItem)
	o, err := x.Ingest(ctx, item{id: "one", vec: []float32{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != models.OutcomeAdded || o.ID != "one" || o.Index != 1 {
		t.Errorf("outcome: %+v", o)
	}
	o, err = x.Ingest(ctx, item{id: "one", vec: []float32{1, 2}})
	if err != nil || o.Kind != models.OutcomeSkipped {
		t.Errorf("second ingest: %+v %v", o, err)
	}
}

func TestRun_sqliteStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(":memory:", 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	x := newIndexer(t, store, embedItem, WithWorkers(3))
	report, err := x.Run(ctx, slices.Values([]item{
		{id: "x", vec: []float32{1, 1}},
		{id: "y", vec: []float32{0, 5}},
		{id: "x", vec: []float32{2, 2}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if report.AddedCount() != 2 || report.SkippedCount() != 1 {
		t.Errorf("report: added=%v skipped=%v failures=%v", report.Added, report.Skipped, report.Failures)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("Count: %d", n)
	}
}
