package loader

import (
	"fmt"
	"io"
	"io/fs"
	"path"
)

// Asset is an opened, streaming-readable bundle entry.
type Asset interface {
	Read(p []byte) (int, error)
	// RemainingLength returns the number of bytes not yet read.
	RemainingLength() int64
	Close() error
}

// AssetManager opens assets by relative path.
type AssetManager interface {
	Open(name string) (Asset, error)
}

// AssetLoader exposes an Asset as a Loader. It owns the asset once created and
// releases it on Close.
type AssetLoader struct {
	asset  Asset
	offset int64
	closed bool
}

// NewAssetLoader takes ownership of a.
func NewAssetLoader(a Asset) *AssetLoader {
	return &AssetLoader{asset: a}
}

func (l *AssetLoader) Read(p []byte) (int, error) {
	if l.closed {
		return 0, ErrClosed
	}
	n, err := l.asset.Read(p)
	if n > 0 {
		l.offset += int64(n)
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// EOF reports whether the asset has no bytes remaining. A closed asset is
// always at EOF.
func (l *AssetLoader) EOF() bool {
	if l.closed {
		return true
	}
	return l.asset.RemainingLength() <= 0
}

// Close releases the asset. Calls after the first are no-ops.
func (l *AssetLoader) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.asset.Close()
}

// Offset returns the number of bytes read so far.
func (l *AssetLoader) Offset() int64 { return l.offset }

// FSAssets serves assets from an fs.FS such as os.DirFS or an embed.FS.
type FSAssets struct {
	FS fs.FS
}

// NewFSAssets returns an AssetManager over fsys.
func NewFSAssets(fsys fs.FS) *FSAssets {
	return &FSAssets{FS: fsys}
}

// Open opens name for streaming reads. Leading slashes are ignored so asset
// paths behave as bundle-relative.
func (a *FSAssets) Open(name string) (Asset, error) {
	name = path.Clean("/" + name)[1:]
	if name == "" {
		name = "."
	}
	f, err := a.FS.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", name, fs.ErrInvalid)
	}
	return &fsAsset{f: f, remaining: info.Size()}, nil
}

type fsAsset struct {
	f         fs.File
	remaining int64
}

func (a *fsAsset) Read(p []byte) (int, error) {
	n, err := a.f.Read(p)
	a.remaining -= int64(n)
	return n, err
}

func (a *fsAsset) RemainingLength() int64 { return a.remaining }

func (a *fsAsset) Close() error { return a.f.Close() }
