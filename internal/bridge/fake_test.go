package bridge

import (
	"errors"

	"github.com/obiente/translate/whisperbridge/internal/loader"
)

// fakeAsset records reads and closes.
type fakeAsset struct {
	data   []byte
	closes int
}

func (a *fakeAsset) Read(p []byte) (int, error) {
	if a.closes > 0 {
		return 0, errors.New("read after close")
	}
	n := copy(p, a.data)
	a.data = a.data[n:]
	return n, nil
}

func (a *fakeAsset) RemainingLength() int64 { return int64(len(a.data)) }

func (a *fakeAsset) Close() error {
	a.closes++
	return nil
}

type fakeAssets map[string]*fakeAsset

func (m fakeAssets) Open(name string) (loader.Asset, error) {
	a, ok := m[name]
	if !ok {
		return nil, errors.New("asset not found")
	}
	return a, nil
}

// chunkStream reports at most chunk bytes available and can fail after a
// number of reads.
type chunkStream struct {
	data      []byte
	chunk     int
	reads     int
	failAfter int
	failErr   error
	closed    bool
}

func (s *chunkStream) Available() (int, error) {
	return min(len(s.data), s.chunk), nil
}

func (s *chunkStream) Read(p []byte) (int, error) {
	if s.failErr != nil && s.reads >= s.failAfter {
		return 0, s.failErr
	}
	s.reads++
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *chunkStream) Close() error {
	s.closed = true
	return nil
}
