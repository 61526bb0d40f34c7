//go:build whisper_cpp

package whisper

/*
#cgo LDFLAGS: -lwhisper -lggml -lggml-base -lggml-cpu -lm -lstdc++
#cgo darwin LDFLAGS: -framework Accelerate -framework Metal -framework Foundation -framework CoreGraphics

#include <whisper.h>
#include <stdlib.h>
#include <stdint.h>
#include <stdbool.h>

// Go-exported trampolines, defined in callbacks_whispercpp.go.
extern size_t whisperBridgeLoaderRead(uintptr_t handle, void *output, size_t size);
extern _Bool whisperBridgeLoaderEOF(uintptr_t handle);
extern void whisperBridgeLoaderClose(uintptr_t handle);
extern void whisperBridgeLog(int level, char *text);

static size_t wb_loader_read(void *ctx, void *output, size_t read_size) {
    return whisperBridgeLoaderRead((uintptr_t)ctx, output, read_size);
}

static bool wb_loader_eof(void *ctx) {
    return whisperBridgeLoaderEOF((uintptr_t)ctx);
}

static void wb_loader_close(void *ctx) {
    whisperBridgeLoaderClose((uintptr_t)ctx);
}

static struct whisper_context *wb_init_from_loader(uintptr_t handle, struct whisper_context_params params) {
    struct whisper_model_loader loader = {
        .context = (void *)handle,
        .read = wb_loader_read,
        .eof = wb_loader_eof,
        .close = wb_loader_close,
    };
    return whisper_init_with_params(&loader, params);
}

static void wb_log_callback(enum ggml_log_level level, const char *text, void *user_data) {
    (void) user_data;
    whisperBridgeLog((int)level, (char *)text);
}

static void wb_log_install(void) {
    whisper_log_set(wb_log_callback, NULL);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	whisperlow "github.com/ggerganov/whisper.cpp/bindings/go"

	"github.com/obiente/translate/whisperbridge/internal/loader"
)

var logSink atomic.Pointer[LogSink]

// fullMu serializes Whisper_full across every context. The bindings keep the
// segment, progress and encoder callbacks in unlocked package-level maps.
var fullMu sync.Mutex

type cppNative struct{}

// New returns the engine compiled into this binary.
func New() Native { return cppNative{} }

func (cppNative) Available() bool { return true }

func (cppNative) InitFromFile(path string, p ContextParams) (Model, error) {
	if path == "" {
		return nil, errors.New("whisper: model path required")
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	params := C.whisper_context_default_params()
	params.use_gpu = C.bool(p.UseGPU)

	ctx := C.whisper_init_from_file_with_params(cPath, params)
	if ctx == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelLoad, path)
	}
	return &cppModel{ctx: ctx}, nil
}

func (cppNative) InitFromLoader(l loader.Loader, p ContextParams) (Model, error) {
	st := &loaderState{loader: l}
	h := cgo.NewHandle(st)
	defer h.Delete()

	params := C.whisper_context_default_params()
	params.use_gpu = C.bool(p.UseGPU)

	ctx := C.wb_init_from_loader(C.uintptr_t(h), params)
	if err := st.failure(); err != nil {
		if ctx != nil {
			C.whisper_free(ctx)
		}
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if ctx == nil {
		return nil, ErrModelLoad
	}
	return &cppModel{ctx: ctx}, nil
}

func (cppNative) SystemInfo() string {
	return whisperlow.Whisper_print_system_info()
}

func (cppNative) BenchMemcpy(threads int) string {
	return C.GoString(C.whisper_bench_memcpy_str(C.int(threads)))
}

func (cppNative) BenchMatMul(threads int) string {
	return C.GoString(C.whisper_bench_ggml_mul_mat_str(C.int(threads)))
}

func (cppNative) SetLogSink(sink LogSink) {
	logSink.Store(&sink)
	C.wb_log_install()
}

// cppModel drives the whisper.cpp Go bindings over a context created here.
type cppModel struct {
	ctx *C.struct_whisper_context
}

func (m *cppModel) low() *whisperlow.Context {
	return (*whisperlow.Context)(unsafe.Pointer(m.ctx))
}

func (m *cppModel) Full(p FullParams, samples []float32, onProgress, onSegment func(int)) error {
	if len(samples) == 0 {
		return errors.New("whisper: no samples")
	}
	ctx := m.low()

	params := ctx.Whisper_full_default_params(whisperlow.SAMPLING_GREEDY)
	params.SetPrintRealtime(false)
	params.SetPrintProgress(false)
	params.SetPrintTimestamps(true)
	params.SetPrintSpecial(false)
	params.SetTranslate(false)
	params.SetSingleSegment(false)
	if p.Threads > 0 {
		params.SetThreads(p.Threads)
	}

	lang := strings.TrimSpace(p.Language)
	langID := -1
	if lang != "" && !strings.EqualFold(lang, "auto") {
		if langID = ctx.Whisper_lang_id(lang); langID < 0 {
			return fmt.Errorf("whisper: unsupported language %q", lang)
		}
	}
	if err := params.SetLanguage(langID); err != nil {
		return fmt.Errorf("whisper: set language %q: %w", lang, err)
	}
	if p.Prompt != "" {
		params.SetInitialPrompt(p.Prompt)
	}

	encoderBegin := func() bool { return true }
	fullMu.Lock()
	defer fullMu.Unlock()
	if err := ctx.Whisper_full(params, samples, encoderBegin, onSegment, onProgress); err != nil {
		return fmt.Errorf("whisper: full: %w", err)
	}
	return nil
}

func (m *cppModel) NumSegments() int { return m.low().Whisper_full_n_segments() }

func (m *cppModel) SegmentText(i int) string { return m.low().Whisper_full_get_segment_text(i) }

func (m *cppModel) SegmentT0(i int) int64 { return m.low().Whisper_full_get_segment_t0(i) }

func (m *cppModel) SegmentT1(i int) int64 { return m.low().Whisper_full_get_segment_t1(i) }

func (m *cppModel) Free() {
	if m.ctx != nil {
		C.whisper_free(m.ctx)
		m.ctx = nil
	}
}
