package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/obiente/translate/whisperbridge/internal/loader"
)

// Context owns one handle and frees it on Close. It is the leak-proof way to
// hold a handle in Go code; Handle exposes the raw token to callers that work
// with the handle API directly.
type Context struct {
	b    *Bridge
	h    Handle
	once sync.Once
}

// Open loads a model file into a new Context.
func (b *Bridge) Open(path string, useGPU bool) (*Context, error) {
	h, err := b.InitContext(path, useGPU)
	if err != nil {
		return nil, err
	}
	return &Context{b: b, h: h}, nil
}

// OpenAsset loads a model asset into a new Context.
func (b *Bridge) OpenAsset(am loader.AssetManager, path string) (*Context, error) {
	h, err := b.InitContextFromAsset(am, path)
	if err != nil {
		return nil, err
	}
	return &Context{b: b, h: h}, nil
}

// OpenStream loads a model from s into a new Context.
func (b *Bridge) OpenStream(s loader.Stream) (*Context, error) {
	h, err := b.InitContextFromStream(s)
	if err != nil {
		return nil, err
	}
	return &Context{b: b, h: h}, nil
}

// Handle returns the raw token. It stays owned by c.
func (c *Context) Handle() Handle { return c.h }

// Close frees the context. Later calls do nothing.
func (c *Context) Close() error {
	c.once.Do(func() { c.b.FreeContext(c.h) })
	return nil
}

// Transcribe runs Bridge.Transcribe on the owned handle.
func (c *Context) Transcribe(threads int, samples []float32, onProgress, onSegment func(int), prompt *string) error {
	return c.b.Transcribe(c.h, threads, samples, onProgress, onSegment, prompt)
}

// Segments collects every segment of the last transcription.
func (c *Context) Segments() []Segment {
	n := c.b.SegmentCount(c.h)
	out := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.Segment(i))
	}
	return out
}

// Segment returns segment i of the last transcription.
func (c *Context) Segment(i int) Segment {
	return Segment{
		Index: i,
		Start: c.b.SegmentStart(c.h, i),
		End:   c.b.SegmentEnd(c.h, i),
		Text:  c.b.SegmentText(c.h, i),
	}
}

// Segment is one transcribed span. Start and End are in centiseconds.
type Segment struct {
	Index int    `json:"index"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// StartTime returns Start as a duration.
func (s Segment) StartTime() time.Duration { return time.Duration(s.Start) * 10 * time.Millisecond }

// EndTime returns End as a duration.
func (s Segment) EndTime() time.Duration { return time.Duration(s.End) * 10 * time.Millisecond }

func (s Segment) String() string {
	return fmt.Sprintf("(%d-%d) %s", s.Start, s.End, s.Text)
}
