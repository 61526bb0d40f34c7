// Package service holds the process's loaded model and serializes every
// transcription on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/whisperbridge/internal/bridge"
	"github.com/obiente/translate/whisperbridge/internal/config"
	"github.com/obiente/translate/whisperbridge/internal/loader"
	"github.com/obiente/translate/whisperbridge/internal/logging"
	"github.com/obiente/translate/whisperbridge/internal/models"
)

var (
	ErrNotReady  = errors.New("service: no model loaded")
	ErrNoSamples = errors.New("service: no audio samples")
)

// Request is one transcription job. Samples are mono at whisper.SampleRate.
type Request struct {
	Samples []float32
	Threads int
	Prompt  *string
	// OnProgress receives engine progress percentages.
	OnProgress func(int)
	// OnSegment receives each new segment as the engine produces it.
	OnSegment func(bridge.Segment)
}

// Service owns one context.
type Service struct {
	bridge  *bridge.Bridge
	threads int
	log     zerolog.Logger

	mu  sync.Mutex
	ctx *bridge.Context
}

// New wraps an already opened context. ctx may be nil; the service then
// reports not ready.
func New(b *bridge.Bridge, ctx *bridge.Context, threads int) *Service {
	if threads < 1 {
		threads = 1
	}
	return &Service{
		bridge:  b,
		ctx:     ctx,
		threads: threads,
		log:     logging.WithComponent("service"),
	}
}

// Open loads the configured model through b and wraps it.
func Open(ctx context.Context, b *bridge.Bridge, cfg config.Config) (*Service, error) {
	c, err := OpenContext(ctx, b, cfg)
	if err != nil {
		return nil, err
	}
	return New(b, c, cfg.Threads), nil
}

// OpenContext loads the model named by cfg from its configured source. An empty
// model path on the file source resolves the configured variant in the models
// directory, downloading it if needed.
func OpenContext(ctx context.Context, b *bridge.Bridge, cfg config.Config) (*bridge.Context, error) {
	switch cfg.ModelSource {
	case config.SourceAsset:
		return b.OpenAsset(loader.NewFSAssets(os.DirFS(cfg.AssetDir)), cfg.ModelPath)
	case config.SourceStream:
		f, err := os.Open(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("service: open model stream: %w", err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return b.OpenStream(loader.NewReaderStream(f, info.Size()))
	default:
		path := cfg.ModelPath
		if strings.TrimSpace(path) == "" {
			d := &models.Downloader{Dir: filepath.Clean(cfg.ModelsDir)}
			resolved, err := d.Ensure(ctx, cfg.ModelVariant)
			if err != nil {
				return nil, err
			}
			path = resolved
		}
		return b.Open(path, cfg.UseGPU)
	}
}

// Ready reports whether a model is loaded.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// Threads is the default thread count.
func (s *Service) Threads() int { return s.threads }

// Transcribe runs req and returns every segment. Concurrent calls queue.
func (s *Service) Transcribe(req Request) ([]bridge.Segment, error) {
	if len(req.Samples) == 0 {
		return nil, ErrNoSamples
	}
	threads := req.Threads
	if threads < 1 {
		threads = s.threads
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil, ErrNotReady
	}

	c := s.ctx
	onSegment := func(n int) {
		if req.OnSegment == nil {
			return
		}
		total := s.bridge.SegmentCount(c.Handle())
		for i := max(total-n, 0); i < total; i++ {
			req.OnSegment(c.Segment(i))
		}
	}
	if err := c.Transcribe(threads, req.Samples, req.OnProgress, onSegment, req.Prompt); err != nil {
		return nil, err
	}
	return c.Segments(), nil
}

// SystemInfo returns the engine capability string.
func (s *Service) SystemInfo() string { return s.bridge.SystemInfo() }

// Bench runs the named micro-benchmark, "memcpy" or "matmul".
func (s *Service) Bench(kind string, threads int) (string, error) {
	if threads < 1 {
		threads = s.threads
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case "memcpy":
		return s.bridge.BenchMemcpy(threads), nil
	case "matmul":
		return s.bridge.BenchMatMul(threads), nil
	}
	return "", fmt.Errorf("service: unknown benchmark %q", kind)
}

// Close frees the model. The service reports not ready afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Close()
	s.ctx = nil
	s.log.Info().Msg("model released")
	return err
}
