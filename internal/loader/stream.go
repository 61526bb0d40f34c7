package loader

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// Stream is a source that reports how many bytes it can deliver right now and
// reads into a caller buffer.
type Stream interface {
	// Available returns the number of bytes readable without blocking.
	Available() (int, error)
	Read(p []byte) (int, error)
}

// StreamLoader exposes a Stream as a Loader.
//
// Reads never ask the stream for more than it reports as available, so a
// chunked stream yields short reads the native loader must tolerate. EOF is a
// heuristic: a stream temporarily reporting zero available bytes is
// indistinguishable from an exhausted one. Only use it with streams whose
// content is already fully buffered.
type StreamLoader struct {
	stream     Stream
	log        zerolog.Logger
	offset     int64
	shortReads int
	err        error
}

// NewStreamLoader wraps s. The loader never closes s.
func NewStreamLoader(s Stream, logger zerolog.Logger) *StreamLoader {
	return &StreamLoader{
		stream: s,
		log:    logger.With().Str("component", "stream_loader").Logger(),
	}
}

// Read copies min(len(p), available) bytes from the stream into p through a
// transient buffer and returns the number of bytes copied.
func (l *StreamLoader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	avail, err := l.stream.Available()
	if err != nil {
		l.err = err
		return 0, err
	}
	toCopy := len(p)
	if avail < toCopy {
		toCopy = max(avail, 0)
	}

	buf := make([]byte, toCopy)
	n := 0
	if toCopy > 0 {
		n, err = l.stream.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			l.err = err
		}
	}
	n = min(max(n, 0), toCopy)

	if toCopy != len(p) || n != len(p) {
		l.shortReads++
		l.log.Info().
			Int("requested", len(p)).
			Int("to_copy", toCopy).
			Int("read", n).
			Int64("offset", l.offset).
			Msg("short read")
	}

	copy(p, buf[:n])
	l.offset += int64(n)
	return n, l.err
}

// EOF reports whether the stream currently has no bytes available.
func (l *StreamLoader) EOF() bool {
	if l.err != nil {
		return true
	}
	avail, err := l.stream.Available()
	if err != nil {
		l.err = err
		return true
	}
	return avail <= 0
}

// Close is a no-op: the stream's lifecycle belongs to its owner.
func (l *StreamLoader) Close() error { return nil }

// Offset returns the number of bytes consumed so far.
func (l *StreamLoader) Offset() int64 { return l.offset }

// ShortReads returns how many reads delivered less than requested.
func (l *StreamLoader) ShortReads() int { return l.shortReads }

// Err returns the first stream error seen, if any.
func (l *StreamLoader) Err() error { return l.err }

// ReaderStream turns an io.Reader with a known total size into a Stream whose
// available count is the number of bytes not yet read. Read fills p from the
// underlying reader, so every available byte is delivered when asked for.
type ReaderStream struct {
	r    io.Reader
	left int64
}

// NewReaderStream wraps r, which must deliver exactly size bytes.
func NewReaderStream(r io.Reader, size int64) *ReaderStream {
	return &ReaderStream{r: r, left: size}
}

func (s *ReaderStream) Available() (int, error) {
	const maxInt = int64(^uint(0) >> 1)
	if s.left > maxInt {
		return int(maxInt), nil
	}
	return int(s.left), nil
}

func (s *ReaderStream) Read(p []byte) (int, error) {
	if s.left <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.left {
		p = p[:s.left]
	}
	n, err := io.ReadFull(s.r, p)
	s.left -= int64(n)
	if errors.Is(err, io.EOF) && s.left > 0 {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}
