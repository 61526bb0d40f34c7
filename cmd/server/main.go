package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/whisperbridge/internal/bridge"
	"github.com/obiente/translate/whisperbridge/internal/config"
	serverhttp "github.com/obiente/translate/whisperbridge/internal/http"
	"github.com/obiente/translate/whisperbridge/internal/logging"
	"github.com/obiente/translate/whisperbridge/internal/service"
	"github.com/obiente/translate/whisperbridge/internal/translation"
	"github.com/obiente/translate/whisperbridge/internal/whisper"
	"github.com/obiente/translate/whisperbridge/internal/ws"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	native := whisper.New()
	if !native.Available() {
		log.Warn().Msg("built without the whisper_cpp tag; transcription is unavailable")
	}
	b := bridge.New(native, bridge.Options{Language: cfg.Language, UseGPU: cfg.UseGPU})
	b.InitLogging()

	svc, err := service.Open(ctx, b, cfg)
	if err != nil {
		log.Error().Err(err).Str("source", cfg.ModelSource).Msg("model load failed; serving without a model")
		svc = service.New(b, nil, cfg.Threads)
	}
	defer svc.Close()

	var tr translation.Translator
	if cfg.TranslationEnabled {
		tr = translation.New(cfg.TranslationBaseURL, cfg.TranslationTimeoutSec).
			WithAlternatives(cfg.TranslationAlternatives)
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: serverhttp.NewRouter(serverhttp.Deps{
			Service:    svc,
			Translator: tr,
			Language:   cfg.Language,
			WS:         ws.NewServer(svc).Handler(),
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.Addr).
		Str("language", b.Language()).
		Int("threads", cfg.Threads).
		Msg("whisperbridge server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}
