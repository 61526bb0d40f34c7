package relay

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRelayForwardsInOrder(t *testing.T) {
	var got []int
	r := New(KindProgress, func(v int) { got = append(got, v) }, zerolog.Nop())

	for _, v := range []int{0, 5, 5, 40, 100} {
		r.Invoke(v)
	}

	want := []int{0, 5, 5, 40, 100}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if r.Count() != len(want) {
		t.Fatalf("Count = %d, want %d", r.Count(), len(want))
	}
}

func TestRelayInterleavedKindsKeepRelativeOrder(t *testing.T) {
	var trace []string
	progress := New(KindProgress, func(v int) { trace = append(trace, "p") }, zerolog.Nop())
	segment := New(KindSegment, func(v int) { trace = append(trace, "s") }, zerolog.Nop())

	progress.Invoke(10)
	segment.Invoke(1)
	progress.Invoke(50)
	segment.Invoke(2)
	segment.Invoke(1)
	progress.Invoke(100)

	if got := strings.Join(trace, ""); got != "pspssp" {
		t.Fatalf("trace = %q, want %q", got, "pspssp")
	}
	if progress.Count() != 3 || segment.Count() != 3 {
		t.Fatalf("counts = %d/%d, want 3/3", progress.Count(), segment.Count())
	}
}

func TestRelayNilCallbackCountsEvents(t *testing.T) {
	r := New(KindSegment, nil, zerolog.Nop())
	r.Invoke(1)
	r.Invoke(2)
	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2", r.Count())
	}
}

func TestRelayDropsEventsAfterSeal(t *testing.T) {
	var logs bytes.Buffer
	calls := 0
	r := New(KindProgress, func(int) { calls++ }, zerolog.New(&logs))

	r.Invoke(1)
	r.Seal()
	r.Invoke(2)

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	if !strings.Contains(logs.String(), `"level":"warn"`) {
		t.Fatalf("expected a warning, got %q", logs.String())
	}
}

func TestRelayFuncForwards(t *testing.T) {
	var last int
	r := New(KindProgress, func(v int) { last = v }, zerolog.Nop())
	fn := r.Func()
	fn(42)
	if last != 42 {
		t.Fatalf("last = %d, want 42", last)
	}
}
