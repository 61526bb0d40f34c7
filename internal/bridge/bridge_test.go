package bridge

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/obiente/translate/whisperbridge/internal/metrics"
	"github.com/obiente/translate/whisperbridge/internal/whisper"
	"github.com/obiente/translate/whisperbridge/internal/whisper/whispertest"
)

func newTestBridge(t *testing.T, native *whispertest.Native, lang string) (*Bridge, *bytes.Buffer, *metrics.Metrics) {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	m := metrics.New(prometheus.NewRegistry())
	b := New(native, Options{Language: lang, Logger: &logger, Metrics: m})
	return b, &buf, m
}

func TestInitContextFromFile(t *testing.T) {
	native := &whispertest.Native{}
	b, _, m := newTestBridge(t, native, "")

	h, err := b.InitContext("/models/ggml-tiny.bin", true)
	if err != nil {
		t.Fatalf("InitContext: %v", err)
	}
	if h == 0 {
		t.Fatal("null handle on success")
	}
	if !native.Models[0].Params.UseGPU {
		t.Fatal("use_gpu not forwarded")
	}
	if got := b.LiveContexts(); got != 1 {
		t.Fatalf("LiveContexts = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.ContextsLive); got != 1 {
		t.Fatalf("contexts_live = %v, want 1", got)
	}

	b.FreeContext(h)
	if native.Models[0].Freed != 1 {
		t.Fatalf("model freed %d times, want 1", native.Models[0].Freed)
	}
	if got := b.LiveContexts(); got != 0 {
		t.Fatalf("LiveContexts = %d after free", got)
	}
}

func TestInitContextFailureReturnsNullHandle(t *testing.T) {
	native := &whispertest.Native{FileErr: whisper.ErrModelLoad}
	b, logs, m := newTestBridge(t, native, "")

	h, err := b.InitContext("missing.bin", false)
	if h != 0 {
		t.Fatalf("handle = %d, want 0", h)
	}
	if !errors.Is(err, ErrInitFailed) || !errors.Is(err, whisper.ErrModelLoad) {
		t.Fatalf("err = %v", err)
	}
	if got := testutil.ToFloat64(m.ContextInits.WithLabelValues(SourceFile, "failed")); got != 1 {
		t.Fatalf("failed inits = %v, want 1", got)
	}
	if !strings.Contains(logs.String(), "failed to initialise context") {
		t.Fatalf("missing failure log: %s", logs.String())
	}
}

func TestInitContextFromAssetMissingLogsOnce(t *testing.T) {
	native := &whispertest.Native{}
	b, logs, _ := newTestBridge(t, native, "")

	h, err := b.InitContextFromAsset(fakeAssets{}, "models/ggml-tiny.bin")
	if h != 0 {
		t.Fatalf("handle = %d, want 0", h)
	}
	if !errors.Is(err, ErrInitFailed) {
		t.Fatalf("err = %v, want ErrInitFailed", err)
	}
	if native.LoaderCalls != 0 {
		t.Fatalf("engine called %d times for a missing asset", native.LoaderCalls)
	}
	if got := strings.Count(logs.String(), `"level":"warn"`); got != 1 {
		t.Fatalf("warn entries = %d, want 1:\n%s", got, logs.String())
	}
}

func TestInitContextFromAssetStreamsWholeAsset(t *testing.T) {
	data := whispertest.ModelBytes(100)
	asset := &fakeAsset{data: append([]byte{}, data...)}
	native := &whispertest.Native{}
	b, _, m := newTestBridge(t, native, "")

	h, err := b.InitContextFromAsset(fakeAssets{"ggml-tiny.bin": asset}, "ggml-tiny.bin")
	if err != nil {
		t.Fatalf("InitContextFromAsset: %v", err)
	}
	defer b.FreeContext(h)

	if !bytes.Equal(native.Loaded, data) {
		t.Fatalf("engine read %d bytes, want %d", len(native.Loaded), len(data))
	}
	if asset.closes != 1 {
		t.Fatalf("asset closed %d times, want 1", asset.closes)
	}
	if got := testutil.ToFloat64(m.LoaderBytes.WithLabelValues(SourceAsset)); got != float64(len(data)) {
		t.Fatalf("loader bytes = %v, want %d", got, len(data))
	}
}

func TestInitContextFromStream(t *testing.T) {
	data := whispertest.ModelBytes(64)
	s := &chunkStream{data: append([]byte{}, data...), chunk: 5}
	native := &whispertest.Native{ReadSize: 16}
	b, logs, m := newTestBridge(t, native, "")

	h, err := b.InitContextFromStream(s)
	if err != nil {
		t.Fatalf("InitContextFromStream: %v", err)
	}
	defer b.FreeContext(h)

	if !bytes.Equal(native.Loaded, data) {
		t.Fatalf("engine read %q, want %q", native.Loaded, data)
	}
	if s.closed {
		t.Fatal("stream closed by the bridge")
	}
	if testutil.ToFloat64(m.LoaderShortReads) == 0 {
		t.Fatal("expected short reads to be counted")
	}
	if !strings.Contains(logs.String(), "short read") {
		t.Fatal("expected a short read log entry")
	}
}

func TestInitContextFromStreamPropagatesStreamError(t *testing.T) {
	boom := errors.New("stream broke")
	s := &chunkStream{data: whispertest.ModelBytes(64), chunk: 8, failAfter: 2, failErr: boom}
	native := &whispertest.Native{ReadSize: 8}
	b, _, _ := newTestBridge(t, native, "")

	h, err := b.InitContextFromStream(s)
	if h != 0 {
		t.Fatalf("handle = %d, want 0", h)
	}
	if !errors.Is(err, boom) || !errors.Is(err, ErrInitFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(native.Models) != 1 || native.Models[0].Freed != 1 {
		t.Fatal("partially loaded context was not freed")
	}
	if b.LiveContexts() != 0 {
		t.Fatal("failed init left a live context")
	}
}

func TestInitContextFromStreamRejectsMalformedModel(t *testing.T) {
	s := &chunkStream{data: []byte("not a model"), chunk: 4}
	b, _, _ := newTestBridge(t, &whispertest.Native{}, "")

	h, err := b.InitContextFromStream(s)
	if h != 0 || !errors.Is(err, whisper.ErrModelLoad) {
		t.Fatalf("h = %d, err = %v", h, err)
	}
}

func TestTranscribeRelaysEventsInOrder(t *testing.T) {
	native := &whispertest.Native{
		Events: []whispertest.Event{
			{Kind: "progress", Value: 10}, {Kind: "segment", Value: 1}, {Kind: "progress", Value: 50},
			{Kind: "segment", Value: 2}, {Kind: "progress", Value: 100},
		},
		Segments: []whispertest.Segment{
			{T0: 0, T1: 150, Text: " hallo"}, {T0: 150, T1: 300, Text: " welt"}, {T0: 300, T1: 420, Text: " !"},
		},
	}
	b, _, m := newTestBridge(t, native, "de")
	h, err := b.InitContext("model.bin", false)
	if err != nil {
		t.Fatalf("InitContext: %v", err)
	}
	defer b.FreeContext(h)

	var trace []string
	var progress, segments []int
	err = b.Transcribe(h, 4, make([]float32, whisper.SampleRate),
		func(v int) { trace = append(trace, "p"); progress = append(progress, v) },
		func(n int) { trace = append(trace, "s"); segments = append(segments, n) },
		nil,
	)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got := strings.Join(trace, ""); got != "pspsp" {
		t.Fatalf("event order = %q, want pspsp", got)
	}
	if want := []int{10, 50, 100}; !equalInts(progress, want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	if want := []int{1, 2}; !equalInts(segments, want) {
		t.Fatalf("segments = %v, want %v", segments, want)
	}
	if got := b.SegmentCount(h); got != 3 {
		t.Fatalf("SegmentCount = %d, want 3", got)
	}
	if got := b.SegmentText(h, 1); got != " welt" {
		t.Fatalf("SegmentText(1) = %q", got)
	}
	if b.SegmentStart(h, 2) != 300 || b.SegmentEnd(h, 2) != 420 {
		t.Fatalf("segment 2 = [%d, %d]", b.SegmentStart(h, 2), b.SegmentEnd(h, 2))
	}
	if got := testutil.ToFloat64(m.CallbackEvents.WithLabelValues("progress")); got != 3 {
		t.Fatalf("progress events metric = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.CallbackEvents.WithLabelValues("segment")); got != 2 {
		t.Fatalf("segment events metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Transcriptions.WithLabelValues("ok")); got != 1 {
		t.Fatalf("transcriptions ok = %v, want 1", got)
	}
}

func TestTranscribePassesParams(t *testing.T) {
	native := &whispertest.Native{}
	b, _, _ := newTestBridge(t, native, "de")
	h, err := b.InitContext("model.bin", false)
	if err != nil {
		t.Fatalf("InitContext: %v", err)
	}
	defer b.FreeContext(h)
	model := native.Models[0]

	if err := b.Transcribe(h, 3, make([]float32, 10), nil, nil, nil); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if model.LastParams != (whisper.FullParams{Threads: 3, Language: "de"}) {
		t.Fatalf("params = %+v", model.LastParams)
	}
	if model.LastLen != 10 {
		t.Fatalf("samples = %d, want 10", model.LastLen)
	}

	prompt := "Fachbegriffe: Kubernetes"
	if err := b.Transcribe(h, 3, make([]float32, 10), nil, nil, &prompt); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if model.LastParams.Prompt != prompt {
		t.Fatalf("prompt = %q, want %q", model.LastParams.Prompt, prompt)
	}
}

func TestTranscribeDropsEventsAfterReturn(t *testing.T) {
	native := &whispertest.Native{Events: []whispertest.Event{{Kind: "progress", Value: 100}}}
	b, logs, _ := newTestBridge(t, native, "")
	h, err := b.InitContext("model.bin", false)
	if err != nil {
		t.Fatalf("InitContext: %v", err)
	}
	defer b.FreeContext(h)

	var calls int
	if err := b.Transcribe(h, 1, make([]float32, 10), func(int) { calls++ }, func(int) { calls++ }, nil); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	model := native.Models[0]
	model.RetainedProgress(42)
	model.RetainedSegment(1)

	if calls != 1 {
		t.Fatalf("callbacks = %d, want 1", calls)
	}
	if got := strings.Count(logs.String(), "event after call returned"); got != 2 {
		t.Fatalf("late event warnings = %d, want 2", got)
	}
}

func TestTranscribeEngineFailure(t *testing.T) {
	engineErr := errors.New("whisper_full failed")
	native := &whispertest.Native{FullErr: engineErr}
	b, logs, m := newTestBridge(t, native, "")
	h, err := b.InitContext("model.bin", false)
	if err != nil {
		t.Fatalf("InitContext: %v", err)
	}
	defer b.FreeContext(h)

	err = b.Transcribe(h, 1, make([]float32, 10), nil, nil, nil)
	if !errors.Is(err, engineErr) {
		t.Fatalf("err = %v, want %v", err, engineErr)
	}
	if !strings.Contains(logs.String(), "failed to run the model") {
		t.Fatal("missing failure log")
	}
	if got := testutil.ToFloat64(m.Transcriptions.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed transcriptions = %v, want 1", got)
	}
}

func TestTranscribeSilenceEndToEnd(t *testing.T) {
	native := &whispertest.Native{
		Events:   []whispertest.Event{{Kind: "progress", Value: 0}, {Kind: "segment", Value: 1}, {Kind: "progress", Value: 100}},
		Segments: []whispertest.Segment{{T0: 0, T1: 100, Text: ""}},
	}
	b, _, _ := newTestBridge(t, native, "")

	c, err := b.Open("model.bin", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if err := c.Transcribe(1, make([]float32, whisper.SampleRate), nil, nil, nil); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	segs := c.Segments()
	if len(segs) != b.SegmentCount(c.Handle()) {
		t.Fatalf("collected %d segments, count is %d", len(segs), b.SegmentCount(c.Handle()))
	}
	for _, s := range segs {
		if s.End < s.Start {
			t.Fatalf("segment %d ends before it starts: %v", s.Index, s)
		}
	}
}

func TestFreedHandlePanics(t *testing.T) {
	b, _, _ := newTestBridge(t, &whispertest.Native{}, "")
	h, err := b.InitContext("model.bin", false)
	if err != nil {
		t.Fatalf("InitContext: %v", err)
	}
	b.FreeContext(h)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on a freed handle")
		}
	}()
	b.SegmentCount(h)
}

func TestHandlesAreDistinct(t *testing.T) {
	b, _, _ := newTestBridge(t, &whispertest.Native{}, "")
	h1, _ := b.InitContext("a.bin", false)
	h2, _ := b.InitContext("b.bin", false)
	defer b.FreeContext(h1)
	defer b.FreeContext(h2)
	if h1 == h2 {
		t.Fatalf("handles collide: %d", h1)
	}
}

func TestSystemInfoAndBench(t *testing.T) {
	b, _, _ := newTestBridge(t, &whispertest.Native{}, "")
	if !strings.Contains(b.SystemInfo(), "AVX") {
		t.Fatalf("SystemInfo = %q", b.SystemInfo())
	}
	if b.BenchMemcpy(2) == "" || b.BenchMatMul(2) == "" {
		t.Fatal("empty bench report")
	}
	if b.Language() != "auto" {
		t.Fatalf("Language = %q, want auto", b.Language())
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
