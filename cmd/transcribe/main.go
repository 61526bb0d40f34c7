package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/whisperbridge/internal/audio"
	"github.com/obiente/translate/whisperbridge/internal/bridge"
	"github.com/obiente/translate/whisperbridge/internal/loader"
	"github.com/obiente/translate/whisperbridge/internal/logging"
	"github.com/obiente/translate/whisperbridge/internal/whisper"
)

func main() {
	var (
		modelPath = flag.String("model", "", "path to a ggml model file")
		assetDir  = flag.String("asset-dir", "", "directory to load -asset from")
		asset     = flag.String("asset", "", "model name inside -asset-dir")
		stream    = flag.String("stream", "", "model file loaded through the stream loader")
		threads   = flag.Int("threads", 4, "inference threads")
		prompt    = flag.String("prompt", "", "initial prompt")
		useGPU    = flag.Bool("gpu", false, "use the GPU when available")
		language  = flag.String("lang", "auto", "spoken language, or auto")
		sysinfo   = flag.Bool("sysinfo", false, "print engine system info and exit")
		bench     = flag.Int("bench", 0, "run the micro-benchmarks with N threads and exit")
		logLevel  = flag.String("log-level", "warn", "log level")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: transcribe (-model PATH | -asset-dir DIR -asset NAME | -stream PATH) [flags] file.wav...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})

	promptSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "prompt" {
			promptSet = true
		}
	})

	b := bridge.New(whisper.New(), bridge.Options{Language: *language, UseGPU: *useGPU})
	b.InitLogging()

	if *sysinfo {
		fmt.Println(b.SystemInfo())
		return
	}
	if *bench > 0 {
		fmt.Print(b.BenchMemcpy(*bench))
		fmt.Print(b.BenchMatMul(*bench))
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c, err := open(b, *modelPath, *assetDir, *asset, *stream, *useGPU)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transcribe: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	var p *string
	if promptSet {
		p = prompt
	}

	failed := false
	for _, path := range flag.Args() {
		if err := transcribeFile(c, path, *threads, p); err != nil {
			fmt.Fprintf(os.Stderr, "transcribe: %s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		c.Close()
		os.Exit(1)
	}
}

func open(b *bridge.Bridge, modelPath, assetDir, asset, stream string, useGPU bool) (*bridge.Context, error) {
	switch {
	case asset != "":
		if assetDir == "" {
			assetDir = "."
		}
		return b.OpenAsset(loader.NewFSAssets(os.DirFS(assetDir)), asset)
	case stream != "":
		f, err := os.Open(stream)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return b.OpenStream(loader.NewReaderStream(f, info.Size()))
	case modelPath != "":
		return b.Open(modelPath, useGPU)
	}
	return nil, fmt.Errorf("one of -model, -asset or -stream is required")
}

func transcribeFile(c *bridge.Context, path string, threads int, prompt *string) error {
	samples, rate, err := audio.DecodeWAVFile(path)
	if err != nil {
		return err
	}
	samples = audio.ForEngine(samples, rate)

	log.Info().Str("file", path).Int("samples", len(samples)).Msg("transcribing")
	progress := func(p int) {
		fmt.Fprintf(os.Stderr, "\r%s: %3d%%", filepath.Base(path), p)
	}
	if err := c.Transcribe(threads, samples, progress, nil, prompt); err != nil {
		fmt.Fprintln(os.Stderr)
		return err
	}
	fmt.Fprintln(os.Stderr)

	for _, seg := range c.Segments() {
		seg.Text = strings.TrimSpace(seg.Text)
		fmt.Println(seg.String())
	}
	return nil
}
