package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/whisperbridge/internal/audio"
	"github.com/obiente/translate/whisperbridge/internal/bridge"
	"github.com/obiente/translate/whisperbridge/internal/service"
	"github.com/obiente/translate/whisperbridge/internal/translation"
)

// MaxUploadBytes bounds a POST /v1/transcribe body.
const MaxUploadBytes = 64 << 20

type Deps struct {
	Service *service.Service
	// Translator is optional; without it translate_to is ignored.
	Translator translation.Translator
	// Language is passed to the translator as the source language.
	Language string
	// WS serves /ws/transcribe when set.
	WS http.Handler
	// Metrics defaults to the default Prometheus registry.
	Metrics http.Handler
	Logger  *zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	logger := log.Logger
	if d.Logger != nil {
		logger = *d.Logger
	}
	metricsHandler := d.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("request")
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Service == nil || !d.Service.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
	})
	r.Handle("/metrics", metricsHandler)

	h := &handlers{svc: d.Service, tr: d.Translator, lang: d.Language}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/system-info", h.systemInfo)
		r.Get("/bench/{kind}", h.bench)
		r.Post("/transcribe", h.transcribe)
	})

	if d.WS != nil {
		r.Handle("/ws/transcribe", d.WS)
	}
	return r
}

type handlers struct {
	svc  *service.Service
	tr   translation.Translator
	lang string
}

func (h *handlers) systemInfo(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"system_info": h.svc.SystemInfo()})
}

func (h *handlers) bench(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	kind := chi.URLParam(r, "kind")
	threads := queryInt(r, "threads", h.svc.Threads())
	report, err := h.svc.Bench(kind, threads)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "threads": threads, "report": report})
}

type transcribeResponse struct {
	Segments     []bridge.Segment              `json:"segments"`
	Text         string                        `json:"text"`
	Translations map[string]translation.Result `json:"translations,omitempty"`
}

func (h *handlers) transcribe(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	if h.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio body too large")
			return
		}
		logger.Warn().Err(err).Msg("read audio body failed")
		writeError(w, http.StatusBadRequest, "read audio body failed")
		return
	}

	samples, err := decodeBody(body, r.Header.Get("Content-Type"), queryInt(r, "sample_rate", 0))
	if err != nil {
		logger.Warn().Err(err).Msg("audio decode failed")
		writeError(w, http.StatusBadRequest, "decode audio failed")
		return
	}

	req := service.Request{Samples: samples, Threads: queryInt(r, "threads", 0)}
	if q := r.URL.Query(); q.Has("prompt") {
		p := q.Get("prompt")
		req.Prompt = &p
	}

	segs, err := h.svc.Transcribe(req)
	switch {
	case errors.Is(err, service.ErrNoSamples):
		writeError(w, http.StatusBadRequest, "no audio samples")
		return
	case errors.Is(err, service.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	case err != nil:
		logger.Error().Err(err).Msg("transcription failed")
		writeError(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	resp := transcribeResponse{Segments: segs, Text: joinText(segs)}
	if targets := splitList(r.URL.Query().Get("translate_to")); len(targets) > 0 && h.tr != nil {
		tr, err := h.tr.Translate(r.Context(), resp.Text, h.lang, targets)
		if err != nil {
			logger.Warn().Err(err).Strs("targets", targets).Msg("translation failed")
		} else {
			resp.Translations = tr
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody accepts WAV or raw little-endian PCM16 and returns samples at the
// engine rate.
func decodeBody(body []byte, contentType string, sampleRate int) ([]float32, error) {
	var (
		pcm []float32
		sr  int
		err error
	)
	if IsPCM(contentType) {
		pcm, sr, err = audio.DecodePCM16LEToFloat32(body, sampleRate)
	} else {
		pcm, sr, err = audio.DecodeWAVToFloat32(body)
	}
	if err != nil {
		return nil, err
	}
	return audio.ForEngine(pcm, sr), nil
}

// IsPCM reports whether a MIME type names raw PCM16.
func IsPCM(mimeType string) bool {
	mt, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(strings.ToLower(mt)) {
	case "audio/pcm", "audio/l16", "audio/pcm16":
		return true
	}
	return false
}

func joinText(segs []bridge.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return strings.TrimSpace(b.String())
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"error": detail})
}
