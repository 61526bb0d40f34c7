package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/obiente/translate/whisperbridge/internal/logging"
	"github.com/obiente/translate/whisperbridge/internal/models"
)

func main() {
	var (
		variant = flag.String("variant", "base", "model variant, see -list")
		output  = flag.String("dir", "testdata", "base directory where models/<file> will be stored")
		baseURL = flag.String("base-url", models.DefaultBaseURL, "where model files are served from")
		list    = flag.Bool("list", false, "list known variants and exit")
	)
	flag.Parse()

	if *list {
		for _, v := range models.Variants() {
			fmt.Printf("%-22s %-32s %s\n", v.Name, v.File, v.Description)
		}
		return
	}
	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}

	logger := logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	lastPct := int64(-1)
	d := &models.Downloader{
		Dir:     filepath.Join(filepath.Clean(*output), "models"),
		BaseURL: *baseURL,
		Logger:  &logger,
		Progress: func(done, total int64) {
			if total <= 0 {
				return
			}
			if pct := done * 100 / total; pct != lastPct && pct%10 == 0 {
				lastPct = pct
				fmt.Fprintf(os.Stderr, "%d%%\n", pct)
			}
		},
	}

	path, err := d.Ensure(ctx, *variant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: ensure variant %q: %v\n", *variant, err)
		os.Exit(1)
	}
	fmt.Printf("Model %q ready at %s\n", *variant, path)
}
