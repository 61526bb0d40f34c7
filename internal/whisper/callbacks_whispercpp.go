//go:build whisper_cpp

package whisper

/*
#include <stdint.h>
#include <stdlib.h>
#include <stdbool.h>
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"

	"github.com/obiente/translate/whisperbridge/internal/loader"
)

// loaderState is the Go side of one whisper_model_loader. It lives for a
// single init call, referenced from C through a cgo.Handle.
type loaderState struct {
	loader loader.Loader
	err    error
	closed bool
}

func (s *loaderState) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *loaderState) failure() error {
	if s.err != nil {
		return s.err
	}
	return loader.Err(s.loader)
}

func stateFromHandle(h C.uintptr_t) *loaderState {
	return cgo.Handle(h).Value().(*loaderState)
}

// Panics must not unwind through C frames; they are recorded and turn the
// load into a failure.
func recoverInto(st *loaderState) {
	if r := recover(); r != nil {
		st.fail(fmt.Errorf("loader panic: %v", r))
	}
}

//export whisperBridgeLoaderRead
func whisperBridgeLoaderRead(h C.uintptr_t, out unsafe.Pointer, size C.size_t) (n C.size_t) {
	st := stateFromHandle(h)
	if st.err != nil || size == 0 {
		return 0
	}
	defer recoverInto(st)

	buf := unsafe.Slice((*byte)(out), int(size))
	read, err := st.loader.Read(buf)
	if err != nil {
		st.fail(err)
	}
	return C.size_t(read)
}

//export whisperBridgeLoaderEOF
func whisperBridgeLoaderEOF(h C.uintptr_t) (eof C.bool) {
	st := stateFromHandle(h)
	if st.err != nil {
		return C.bool(true)
	}
	eof = C.bool(true)
	defer recoverInto(st)
	return C.bool(st.loader.EOF())
}

//export whisperBridgeLoaderClose
func whisperBridgeLoaderClose(h C.uintptr_t) {
	st := stateFromHandle(h)
	if st.closed {
		return
	}
	st.closed = true
	defer recoverInto(st)
	if err := st.loader.Close(); err != nil {
		st.fail(err)
	}
}

//export whisperBridgeLog
func whisperBridgeLog(level C.int, text *C.char) {
	sink := logSink.Load()
	if sink == nil || *sink == nil {
		return
	}
	(*sink)(LogLevel(level), C.GoString(text))
}
