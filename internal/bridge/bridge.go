// Package bridge is the boundary surface over the native inference engine.
//
// Native contexts cross the boundary as opaque integer handles. A handle is
// returned by one of the Init* calls, must be released exactly once with
// FreeContext, and is invalid afterwards. The bridge performs no reference
// counting; using a released handle panics. Segment indices are not checked:
// callers must stay within [0, SegmentCount) for the most recent Transcribe
// on that handle.
//
// Every operation runs to completion on the calling goroutine. A handle is
// not safe for concurrent use; callers serialize all operations on it.
// Transcribe calls on different handles may run concurrently; the engine
// runs them one at a time.
package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/whisperbridge/internal/handle"
	"github.com/obiente/translate/whisperbridge/internal/loader"
	"github.com/obiente/translate/whisperbridge/internal/metrics"
	"github.com/obiente/translate/whisperbridge/internal/relay"
	"github.com/obiente/translate/whisperbridge/internal/whisper"
)

// Handle is an opaque native context token. The zero Handle is null.
type Handle = handle.Handle

// ErrInitFailed wraps every context initialisation failure.
var ErrInitFailed = errors.New("bridge: context initialisation failed")

// Init sources, used in logs and metrics.
const (
	SourceFile   = "file"
	SourceAsset  = "asset"
	SourceStream = "stream"
)

// Options configures a Bridge.
type Options struct {
	// Language is the transcription language for every context, fixed for the
	// bridge's lifetime. Empty means "auto".
	Language string
	// UseGPU is the GPU preference for asset and stream initialisation.
	// InitContext takes its own flag.
	UseGPU bool
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// Metrics defaults to metrics.Default.
	Metrics *metrics.Metrics
}

// Bridge owns the handle table for one engine.
type Bridge struct {
	native   whisper.Native
	contexts *handle.Table[whisper.Model]
	language string
	useGPU   bool
	root     zerolog.Logger
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// New returns a bridge over native.
func New(native whisper.Native, opts Options) *Bridge {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Default
	}
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	return &Bridge{
		native:   native,
		contexts: handle.NewTable[whisper.Model](),
		language: lang,
		useGPU:   opts.UseGPU,
		root:     logger,
		log:      logger.With().Str("component", "bridge").Logger(),
		metrics:  m,
	}
}

// Language returns the fixed transcription language.
func (b *Bridge) Language() string { return b.language }

// InitContext loads a model file. On failure the handle is null and the error
// wraps ErrInitFailed.
func (b *Bridge) InitContext(path string, useGPU bool) (Handle, error) {
	b.log.Info().Str("path", path).Bool("use_gpu", useGPU).Msg("loading model from file")
	m, err := b.native.InitFromFile(path, whisper.ContextParams{UseGPU: useGPU})
	if err != nil {
		return b.initFailed(SourceFile, path, err)
	}
	return b.register(SourceFile, m), nil
}

// InitContextFromAsset loads a model by streaming the asset at path. A missing
// asset yields a null handle without any engine call.
func (b *Bridge) InitContextFromAsset(am loader.AssetManager, path string) (Handle, error) {
	b.log.Info().Str("asset", path).Msg("loading model from asset")
	a, err := am.Open(path)
	if err != nil {
		return b.initFailed(SourceAsset, path, fmt.Errorf("open asset: %w", err))
	}
	l := loader.NewAssetLoader(a)
	defer l.Close()

	m, err := b.native.InitFromLoader(l, whisper.ContextParams{UseGPU: b.useGPU})
	b.metrics.RecordLoaderBytes(SourceAsset, l.Offset())
	if err != nil {
		return b.initFailed(SourceAsset, path, err)
	}
	return b.register(SourceAsset, m), nil
}

// InitContextFromStream loads a model by pulling bytes from s. s is not closed.
// A stream error aborts the load; the partially built context, if any, is
// freed before the error is returned.
func (b *Bridge) InitContextFromStream(s loader.Stream) (Handle, error) {
	l := loader.NewStreamLoader(s, b.root)
	m, err := b.native.InitFromLoader(l, whisper.ContextParams{UseGPU: b.useGPU})

	b.metrics.RecordLoaderBytes(SourceStream, l.Offset())
	for i := 0; i < l.ShortReads(); i++ {
		b.metrics.RecordShortRead()
	}
	if err == nil && l.Err() != nil {
		m.Free()
		err = l.Err()
	}
	if err != nil {
		return b.initFailed(SourceStream, "", fmt.Errorf("after %d bytes: %w", l.Offset(), err))
	}
	return b.register(SourceStream, m), nil
}

// FreeContext releases h. h must be live; it is invalid afterwards.
func (b *Bridge) FreeContext(h Handle) {
	m := b.contexts.Delete(h)
	m.Free()
	b.metrics.RecordContextFree()
	b.log.Debug().Uint64("handle", uint64(h)).Msg("context freed")
}

// Transcribe runs a blocking transcription of mono float PCM at
// whisper.SampleRate. onProgress receives progress percentages and onSegment
// the number of new segments, synchronously and in engine order, before
// Transcribe returns. Either callback may be nil. prompt, when non-nil, is the
// initial prompt.
//
// On engine failure the error is returned and segment data for h must be
// treated as unreliable; it is not reset.
func (b *Bridge) Transcribe(h Handle, threads int, samples []float32, onProgress, onSegment func(int), prompt *string) error {
	m := b.contexts.Get(h)

	progress := relay.New(relay.KindProgress, onProgress, b.root)
	segment := relay.New(relay.KindSegment, onSegment, b.root)

	p := whisper.FullParams{Threads: threads, Language: b.language}
	if prompt != nil {
		p.Prompt = *prompt
	}

	b.log.Info().
		Uint64("handle", uint64(h)).
		Int("threads", threads).
		Int("samples", len(samples)).
		Str("language", b.language).
		Msg("about to run transcription")

	start := time.Now()
	err := m.Full(p, samples, progress.Func(), segment.Func())
	progress.Seal()
	segment.Seal()
	elapsed := time.Since(start)

	b.metrics.RecordTranscription(len(samples), elapsed.Seconds(), err)
	for _, r := range []*relay.Relay{progress, segment} {
		b.metrics.RecordCallbacks(r.Kind(), r.Count())
	}

	if err != nil {
		b.log.Error().Err(err).Uint64("handle", uint64(h)).Msg("failed to run the model")
		return fmt.Errorf("bridge: transcribe: %w", err)
	}
	b.log.Info().
		Uint64("handle", uint64(h)).
		Dur("elapsed", elapsed).
		Int("segments", m.NumSegments()).
		Int("progress_events", progress.Count()).
		Int("segment_events", segment.Count()).
		Msg("transcription complete")
	return nil
}

// SegmentCount returns the number of segments of the last transcription.
func (b *Bridge) SegmentCount(h Handle) int {
	return b.contexts.Get(h).NumSegments()
}

// SegmentText returns the text of segment i.
func (b *Bridge) SegmentText(h Handle, i int) string {
	return b.contexts.Get(h).SegmentText(i)
}

// SegmentStart returns the start of segment i in centiseconds.
func (b *Bridge) SegmentStart(h Handle, i int) int64 {
	return b.contexts.Get(h).SegmentT0(i)
}

// SegmentEnd returns the end of segment i in centiseconds.
func (b *Bridge) SegmentEnd(h Handle, i int) int64 {
	return b.contexts.Get(h).SegmentT1(i)
}

// SystemInfo returns the engine's capability string.
func (b *Bridge) SystemInfo() string { return b.native.SystemInfo() }

// BenchMemcpy runs the engine's memcpy micro-benchmark.
func (b *Bridge) BenchMemcpy(threads int) string { return b.native.BenchMemcpy(threads) }

// BenchMatMul runs the engine's matrix multiplication micro-benchmark.
func (b *Bridge) BenchMatMul(threads int) string { return b.native.BenchMatMul(threads) }

// LiveContexts reports how many handles have not been freed.
func (b *Bridge) LiveContexts() int { return b.contexts.Len() }

func (b *Bridge) register(source string, m whisper.Model) Handle {
	h := b.contexts.Put(m)
	b.metrics.RecordContextInit(source, true)
	b.log.Info().Str("source", source).Uint64("handle", uint64(h)).Msg("context initialised")
	return h
}

func (b *Bridge) initFailed(source, path string, err error) (Handle, error) {
	b.metrics.RecordContextInit(source, false)
	b.log.Warn().Err(err).Str("source", source).Str("path", path).Msg("failed to initialise context")
	return 0, fmt.Errorf("%w: %s: %w", ErrInitFailed, source, err)
}
