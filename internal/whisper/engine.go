package whisper

import (
	"errors"

	"github.com/obiente/translate/whisperbridge/internal/loader"
)

// SampleRate is the mono PCM rate the engine expects.
const SampleRate = 16000

// ErrNativeUnavailable is returned when the binary was built without the
// whisper_cpp tag.
var ErrNativeUnavailable = errors.New("whisper: native engine unavailable")

// ErrModelLoad is returned when the engine could not build a context.
var ErrModelLoad = errors.New("whisper: model load failed")

// Native is the process-wide surface of the inference engine.
// Implementations are whisper.cpp (build tag: whisper_cpp) or a stub.
type Native interface {
	// Available reports whether a real engine is linked in.
	Available() bool
	// InitFromFile loads a model file.
	InitFromFile(path string, p ContextParams) (Model, error)
	// InitFromLoader loads a model by pulling bytes from l. l is only used for
	// the duration of the call.
	InitFromLoader(l loader.Loader, p ContextParams) (Model, error)
	SystemInfo() string
	BenchMemcpy(threads int) string
	BenchMatMul(threads int) string
	// SetLogSink routes engine diagnostics to sink for the rest of the process.
	SetLogSink(sink LogSink)
}

// Model is one loaded context: weights plus inference state. It is not safe
// for concurrent use.
type Model interface {
	// Full runs a blocking transcription. onProgress and onSegment are called
	// synchronously on the calling goroutine before Full returns; either may
	// be nil.
	Full(p FullParams, samples []float32, onProgress, onSegment func(int)) error
	NumSegments() int
	SegmentText(i int) string
	// SegmentT0 and SegmentT1 return segment bounds in centiseconds.
	SegmentT0(i int) int64
	SegmentT1(i int) int64
	// Free releases native memory. The model must not be used afterwards.
	Free()
}

// ContextParams configures context creation.
type ContextParams struct {
	UseGPU bool
}

// FullParams carries the per-call knobs of a transcription. Everything else is
// fixed: greedy sampling, timestamps on, translation off, multi-segment output.
type FullParams struct {
	Threads int
	// Language is an ISO-639-1 code or "auto".
	Language string
	// Prompt is the optional initial prompt; empty means none.
	Prompt string
}

// LogLevel mirrors ggml_log_level.
type LogLevel int

const (
	LogNone LogLevel = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
	LogCont
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	case LogCont:
		return "cont"
	default:
		return "none"
	}
}

// LogSink receives engine diagnostic text.
type LogSink func(level LogLevel, text string)
