// Package whispertest provides a scripted in-memory engine for tests.
package whispertest

import (
	"bytes"
	"sync"

	"github.com/obiente/translate/whisperbridge/internal/loader"
	"github.com/obiente/translate/whisperbridge/internal/whisper"
)

// Magic is what Native expects at the start of a model.
var Magic = []byte("lmgg")

// ModelBytes returns a size-byte model image that Native accepts.
func ModelBytes(size int) []byte {
	out := append([]byte{}, Magic...)
	for len(out) < size {
		out = append(out, byte(len(out)))
	}
	return out
}

// Event is one scripted engine callback: Kind is "progress" or "segment".
// A segment event publishes the next Value scripted segments.
type Event struct {
	Kind  string
	Value int
}

// Segment is a scripted segment in centiseconds.
type Segment struct {
	T0, T1 int64
	Text   string
}

// Native mimics the engine. Loader-based init drains the loader until EOF in
// ReadSize chunks, closes it, then checks Magic.
type Native struct {
	mu sync.Mutex

	FileCalls   int
	LoaderCalls int
	Loaded      []byte
	FileErr     error
	ReadSize    int

	Events   []Event
	Segments []Segment
	FullErr  error
	Models   []*Model

	Sinks []whisper.LogSink
}

var _ whisper.Native = (*Native)(nil)

func (f *Native) Available() bool { return true }

func (f *Native) InitFromFile(path string, p whisper.ContextParams) (whisper.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FileCalls++
	if f.FileErr != nil {
		return nil, f.FileErr
	}
	return f.newModel(p), nil
}

func (f *Native) InitFromLoader(l loader.Loader, p whisper.ContextParams) (whisper.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LoaderCalls++
	size := f.ReadSize
	if size == 0 {
		size = 7
	}
	buf := make([]byte, size)
	for !l.EOF() {
		n, err := l.Read(buf)
		f.Loaded = append(f.Loaded, buf[:n]...)
		if err != nil || n == 0 {
			break
		}
	}
	_ = l.Close()
	if !bytes.HasPrefix(f.Loaded, Magic) {
		return nil, whisper.ErrModelLoad
	}
	return f.newModel(p), nil
}

func (f *Native) newModel(p whisper.ContextParams) *Model {
	m := &Model{
		Params:   p,
		Events:   f.Events,
		Segments: f.Segments,
		FullErr:  f.FullErr,
	}
	f.Models = append(f.Models, m)
	return m
}

func (f *Native) SystemInfo() string { return "AVX = 1 | NEON = 0 | whispertest" }

func (f *Native) BenchMemcpy(threads int) string {
	if threads <= 0 {
		return ""
	}
	return "memcpy: whispertest"
}

func (f *Native) BenchMatMul(threads int) string {
	if threads <= 0 {
		return ""
	}
	return "mul_mat: whispertest"
}

func (f *Native) SetLogSink(sink whisper.LogSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sinks = append(f.Sinks, sink)
}

// Model replays its script on every Full call. It keeps the callbacks it was
// given so tests can fire them after Full returns.
type Model struct {
	Params   whisper.ContextParams
	Events   []Event
	Segments []Segment
	FullErr  error

	FullCalls  int
	LastParams whisper.FullParams
	LastLen    int
	Freed      int

	RetainedProgress func(int)
	RetainedSegment  func(int)

	current []Segment
}

var _ whisper.Model = (*Model)(nil)

func (m *Model) Full(p whisper.FullParams, samples []float32, onProgress, onSegment func(int)) error {
	m.FullCalls++
	m.LastParams = p
	m.LastLen = len(samples)
	m.RetainedProgress = onProgress
	m.RetainedSegment = onSegment
	m.current = nil

	next := 0
	for _, ev := range m.Events {
		switch ev.Kind {
		case "progress":
			if onProgress != nil {
				onProgress(ev.Value)
			}
		case "segment":
			for i := 0; i < ev.Value && next < len(m.Segments); i++ {
				m.current = append(m.current, m.Segments[next])
				next++
			}
			if onSegment != nil {
				onSegment(ev.Value)
			}
		}
	}
	return m.FullErr
}

func (m *Model) NumSegments() int { return len(m.current) }

func (m *Model) SegmentText(i int) string { return m.current[i].Text }

func (m *Model) SegmentT0(i int) int64 { return m.current[i].T0 }

func (m *Model) SegmentT1(i int) int64 { return m.current[i].T1 }

func (m *Model) Free() { m.Freed++ }
