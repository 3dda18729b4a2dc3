package factory

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	benchErrors "github.com/idbench/idbench/internal/errors"
	"github.com/idbench/idbench/pkg/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreate_EveryStrategy(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	f := New(types.NewMonotonicGenerator(), WithClock(fixedClock(now)))

	for _, s := range types.AllStrategies() {
		r, err := f.Create(s)
		if err != nil {
			t.Fatalf("Create(%s): %v", s, err)
		}
		if r.Strategy() != s {
			t.Errorf("record strategy = %s, want %s", r.Strategy(), s)
		}
		if !r.CreatedOn().Equal(now) || r.CreatedOn().Location() != time.UTC {
			t.Errorf("%s: createdOn = %v, want %v in UTC", s, r.CreatedOn(), now)
		}
	}
}

func TestCreate_IdentifierShapes(t *testing.T) {
	f := New(types.NewMonotonicGenerator())

	r, _ := f.Create(types.StrategyInt)
	if r.(*types.IntRecord).ID != 0 {
		t.Error("integer id must be left for the storage layer")
	}

	r, _ = f.Create(types.StrategyGUIDv4)
	if !types.IsRandomWideID(r.(*types.WideIDRecord).ID) {
		t.Error("GUIDv4 record does not carry a version 4 id")
	}

	r, _ = f.Create(types.StrategyGUIDv4ClusterOnDate)
	if !types.IsRandomWideID(r.(*types.WideIDRecord).ID) {
		t.Error("GUIDv4+ClusterOnDate record does not carry a version 4 id")
	}

	r, _ = f.Create(types.StrategyGUIDv7)
	if !types.IsTimeOrderedWideID(r.(*types.WideIDRecord).ID) {
		t.Error("GUIDv7 record does not carry a version 7 id")
	}

	r, _ = f.Create(types.StrategyULIDString)
	text := r.(*types.ULIDTextRecord).ID
	if len(text) != types.ULIDTextLen {
		t.Errorf("ULID text length = %d", len(text))
	}
	if _, err := types.ParseULID(text); err != nil {
		t.Errorf("ULID text does not decode: %v", err)
	}

	r, _ = f.Create(types.StrategyULIDBinary)
	if len(r.KeyBytes()) != types.ULIDBinaryLen {
		t.Errorf("ULID binary length = %d", len(r.KeyBytes()))
	}
}

func TestCreate_ULIDTimestampMatchesCreatedOn(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	f := New(types.NewMonotonicGenerator(), WithClock(fixedClock(now)))

	r, err := f.Create(types.StrategyULIDBinary)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := r.(*types.ULIDBinaryRecord).ID.Timestamp(); got != uint64(now.UnixMilli()) {
		t.Errorf("ULID timestamp = %d, want %d", got, now.UnixMilli())
	}
}

func TestCreate_SharedGeneratorAcrossULIDForms(t *testing.T) {
	// Both ULID strategies draw from one generator; interleaving them under a
	// frozen clock must still yield a strictly increasing key stream.
	f := New(types.NewMonotonicGenerator(), WithClock(fixedClock(time.UnixMilli(1_000))))

	var prev types.ULID
	for i := 0; i < 200; i++ {
		s := types.StrategyULIDString
		if i%2 == 1 {
			s = types.StrategyULIDBinary
		}
		r, err := f.Create(s)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		var cur types.ULID
		switch rec := r.(type) {
		case *types.ULIDTextRecord:
			cur, err = types.ParseULID(rec.ID)
			if err != nil {
				t.Fatalf("ParseULID: %v", err)
			}
		case *types.ULIDBinaryRecord:
			cur = rec.ID
		}
		if i > 0 && cur.Compare(prev) <= 0 {
			t.Fatalf("id %d not above previous: %s <= %s", i, cur, prev)
		}
		prev = cur
	}
}

func TestCreate_ClockRegressionCounted(t *testing.T) {
	times := []time.Time{time.UnixMilli(5_000), time.UnixMilli(4_000)}
	i := 0
	clock := func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
	f := New(types.NewMonotonicGenerator(), WithClock(clock))

	a, _ := f.Create(types.StrategyULIDBinary)
	b, _ := f.Create(types.StrategyULIDBinary)
	if bytes.Compare(b.KeyBytes(), a.KeyBytes()) <= 0 {
		t.Error("regressed clock produced a lower key")
	}
	if f.ClockRegressions() != 1 {
		t.Errorf("regressions = %d, want 1", f.ClockRegressions())
	}
}

func TestCreate_UnknownStrategy(t *testing.T) {
	f := New(types.NewMonotonicGenerator())
	_, err := f.Create(types.Strategy(0))
	if benchErrors.GetCode(err) != benchErrors.CodeInvalidArgument {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestCreate_OutOfRangeClockIsCodecError(t *testing.T) {
	f := New(types.NewMonotonicGenerator(), WithClock(fixedClock(time.UnixMilli(-1))))
	_, err := f.Create(types.StrategyULIDString)
	if benchErrors.GetCategory(err) != benchErrors.ErrCategoryCodec {
		t.Fatalf("expected codec error, got %v", err)
	}
	if benchErrors.IsRetryable(err) {
		t.Error("codec errors are not retryable")
	}
}

func TestCreateBatch(t *testing.T) {
	f := New(types.NewMonotonicGenerator())
	batch, err := f.CreateBatch(types.StrategyGUIDv7, 37)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(batch) != 37 {
		t.Errorf("batch size = %d, want 37", len(batch))
	}
}

func TestCreate_ConcurrentULIDsUnique(t *testing.T) {
	f := New(types.NewMonotonicGenerator())
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				r, err := f.Create(types.StrategyULIDBinary)
				if err != nil {
					t.Errorf("Create: %v", err)
					return
				}
				mu.Lock()
				seen[string(r.KeyBytes())] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("got %d unique ids, want %d", len(seen), workers*perWorker)
	}
}

func TestCreate_ConcurrentULIDFormsNoFalseRegressions(t *testing.T) {
	var ms atomic.Int64
	ms.Store(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	f := New(types.NewMonotonicGenerator(),
		WithClock(func() time.Time { return time.UnixMilli(ms.Add(1)) }))

	const perWorker = 20000
	var wg sync.WaitGroup
	for _, s := range []types.Strategy{types.StrategyULIDString, types.StrategyULIDBinary} {
		wg.Add(1)
		go func(s types.Strategy) {
			defer wg.Done()
			var prev time.Time
			for i := 0; i < perWorker; i++ {
				r, err := f.Create(s)
				if err != nil {
					t.Errorf("Create(%s): %v", s, err)
					return
				}
				if r.CreatedOn().Before(prev) {
					t.Errorf("%s: createdOn went backwards at %d", s, i)
					return
				}
				prev = r.CreatedOn()
			}
		}(s)
	}
	wg.Wait()

	if n := f.ClockRegressions(); n != 0 {
		t.Errorf("ClockRegressions = %d, want 0", n)
	}
}

func TestCreate_ConcurrentULIDFormsSystemClock(t *testing.T) {
	f := New(types.NewMonotonicGenerator())

	var wg sync.WaitGroup
	for _, s := range []types.Strategy{types.StrategyULIDString, types.StrategyULIDBinary} {
		wg.Add(1)
		go func(s types.Strategy) {
			defer wg.Done()
			if _, err := f.CreateBatch(s, 50000); err != nil {
				t.Errorf("CreateBatch(%s): %v", s, err)
			}
		}(s)
	}
	wg.Wait()

	if n := f.ClockRegressions(); n != 0 {
		t.Errorf("ClockRegressions = %d, want 0", n)
	}
}
