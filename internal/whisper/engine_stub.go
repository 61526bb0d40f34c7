//go:build !whisper_cpp

package whisper

import "github.com/obiente/translate/whisperbridge/internal/loader"

// Default stub (no cgo) so the project builds without whisper_cpp tag.
type stubNative struct{}

// New returns the engine compiled into this binary.
func New() Native { return stubNative{} }

func (stubNative) Available() bool { return false }

func (stubNative) InitFromFile(string, ContextParams) (Model, error) {
	return nil, ErrNativeUnavailable
}

func (stubNative) InitFromLoader(loader.Loader, ContextParams) (Model, error) {
	return nil, ErrNativeUnavailable
}

func (stubNative) SystemInfo() string     { return "" }
func (stubNative) BenchMemcpy(int) string { return "" }
func (stubNative) BenchMatMul(int) string { return "" }
func (stubNative) SetLogSink(LogSink)     {}
