// Package loader adapts byte sources into the pull-based read/eof/close
// contract the native model loader consumes during context initialisation.
//
// A Loader is used by exactly one initialisation call, sequentially, on the
// calling goroutine. It is never retained once that call returns.
package loader

import "errors"

// ErrClosed is returned by reads issued after Close.
var ErrClosed = errors.New("loader: closed")

// Loader is the byte source handed to the native loader.
type Loader interface {
	// Read fills p with up to len(p) bytes and returns the count. Short reads
	// are legal; the native loader re-invokes Read as needed.
	Read(p []byte) (int, error)
	// EOF reports whether the source is exhausted.
	EOF() bool
	// Close is invoked by the native loader once loading finishes.
	Close() error
}

// Err returns the first error a loader recorded outside of Read, such as a
// failed availability query inside EOF. Loaders that do not record errors
// report nil.
func Err(l Loader) error {
	if r, ok := l.(interface{ Err() error }); ok {
		return r.Err()
	}
	return nil
}
