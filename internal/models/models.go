// Package models knows the published ggml model variants and fetches them.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL serves every file in the catalogue.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

var ErrUnknownVariant = errors.New("models: unknown variant")

// Variant is one downloadable model.
type Variant struct {
	Name        string
	File        string
	Description string
}

var catalogue = []Variant{
	{"large-v3", "ggml-large-v3.bin", "Large v3, best accuracy"},
	{"large-v3-turbo", "ggml-large-v3-turbo.bin", "Large v3 Turbo, faster decoder"},
	{"large-v3-turbo-q5_0", "ggml-large-v3-turbo-q5_0.bin", "Large v3 Turbo, 5-bit quantised"},
	{"medium", "ggml-medium.bin", "Medium"},
	{"small", "ggml-small.bin", "Small"},
	{"base", "ggml-base.bin", "Base"},
	{"tiny", "ggml-tiny.bin", "Tiny, fastest"},
}

// Variants lists the catalogue sorted by name.
func Variants() []Variant {
	out := append([]Variant(nil), catalogue...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the variant called name.
func Lookup(name string) (Variant, error) {
	for _, v := range catalogue {
		if v.Name == name {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// URL returns the download location of v under base.
func (v Variant) URL(base string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/" + v.File
}

// Path returns where v lives under dir.
func (v Variant) Path(dir string) string {
	return filepath.Join(dir, v.File)
}

// Progress receives downloaded and total bytes; total is -1 when unknown.
type Progress func(done, total int64)

// Downloader fetches variants into a directory.
type Downloader struct {
	Dir      string
	BaseURL  string
	Client   *http.Client
	Progress Progress
	Logger   *zerolog.Logger
}

// Ensure returns the local path of the named variant, downloading it first if
// it is not already present.
func (d *Downloader) Ensure(ctx context.Context, name string) (string, error) {
	v, err := Lookup(name)
	if err != nil {
		return "", err
	}
	path := v.Path(d.Dir)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		d.logger().Debug().Str("variant", name).Str("path", path).Msg("model already present")
		return path, nil
	}
	if err := d.Download(ctx, v); err != nil {
		return "", err
	}
	return path, nil
}

// Download fetches v into Dir. The file appears under its final name only once
// complete.
func (d *Downloader) Download(ctx context.Context, v Variant) error {
	logger := d.logger()
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("models: create dir: %w", err)
	}

	url := v.URL(d.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	logger.Info().Str("variant", v.Name).Str("url", url).Msg("downloading model")
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("models: fetch %s: %w", v.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("models: fetch %s: http %d", v.Name, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(d.Dir, v.File+".*.part")
	if err != nil {
		return fmt.Errorf("models: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := &progressWriter{w: tmp, total: resp.ContentLength, fn: d.Progress}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("models: download %s: %w", v.Name, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		tmp.Close()
		return fmt.Errorf("models: download %s: got %d of %d bytes", v.Name, n, resp.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), v.Path(d.Dir)); err != nil {
		return fmt.Errorf("models: install %s: %w", v.Name, err)
	}

	logger.Info().
		Str("variant", v.Name).
		Int64("bytes", n).
		Dur("elapsed", time.Since(start)).
		Msg("model downloaded")
	return nil
}

func (d *Downloader) logger() *zerolog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return &log.Logger
}

type progressWriter struct {
	w     io.Writer
	done  int64
	total int64
	fn    Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
	return n, err
}
