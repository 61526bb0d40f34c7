package ws

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/obiente/translate/whisperbridge/internal/audio"
	"github.com/obiente/translate/whisperbridge/internal/bridge"
	"github.com/obiente/translate/whisperbridge/internal/logging"
	"github.com/obiente/translate/whisperbridge/internal/service"
	"github.com/obiente/translate/whisperbridge/internal/whisper"
)

const (
	readTimeout = 60 * time.Second
	// Rolling window: the oldest trimSamples are dropped once the buffer
	// exceeds maxBufferSamples.
	maxBufferSamples = 90 * whisper.SampleRate
	trimSamples      = 30 * whisper.SampleRate
)

type Server struct {
	svc      *service.Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(svc *service.Service) *Server {
	return &Server{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		log: logging.WithComponent("ws"),
	}
}

// Handler returns Handle as an http.Handler.
func (s *Server) Handler() http.Handler { return http.HandlerFunc(s.Handle) }

// clientMessage is the union of every client message.
type clientMessage struct {
	Type       string  `json:"type"`
	Data       string  `json:"data,omitempty"`
	MimeType   string  `json:"mime_type,omitempty"`
	SampleRate any     `json:"sample_rate,omitempty"`
	Threads    int     `json:"threads,omitempty"`
	Prompt     *string `json:"prompt,omitempty"`
	Ts         any     `json:"ts,omitempty"`
}

type session struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	samples []float32
	threads int
	prompt  *string
	busy    bool
	wg      sync.WaitGroup
}

func (s *session) send(v map[string]any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.Debug().Err(err).Msg("ws write failed")
	}
}

func (s *session) sendError(detail string) {
	s.send(map[string]any{"type": "error", "detail": detail})
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	sess := &session{id: uuid.New().String(), conn: conn}
	sess.log = s.log.With().Str("session_id", sess.id).Logger()
	defer sess.wg.Wait()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(readTimeout)) })

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				sess.log.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.sendError("invalid json")
			continue
		}

		switch msg.Type {
		case "ping":
			sess.send(map[string]any{"type": "pong", "ts": msg.Ts})
		case "start":
			sess.mu.Lock()
			sess.threads = msg.Threads
			sess.prompt = msg.Prompt
			sess.mu.Unlock()
			sess.log.Info().Int("threads", msg.Threads).Bool("prompt", msg.Prompt != nil).Msg("session started")
			sess.send(map[string]any{"type": "started", "session_id": sess.id})
		case "chunk":
			s.handleChunk(sess, msg)
		case "transcribe":
			s.startTranscription(sess)
		case "reset":
			sess.mu.Lock()
			sess.samples = nil
			sess.mu.Unlock()
			sess.send(map[string]any{"type": "reset"})
		case "stop":
			sess.wg.Wait()
			sess.send(map[string]any{"type": "stopped"})
			return
		default:
			sess.sendError("unknown message type")
		}
	}
}

func (s *Server) handleChunk(sess *session, msg clientMessage) {
	if msg.Data == "" {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		sess.sendError("invalid base64 audio")
		return
	}

	var (
		pcm []float32
		sr  int
	)
	switch strings.ToLower(msg.MimeType) {
	case "audio/pcm", "audio/l16", "audio/pcm16":
		pcm, sr, err = audio.DecodePCM16LEToFloat32(raw, asInt(msg.SampleRate))
	default:
		pcm, sr, err = audio.DecodeWAVToFloat32(raw)
	}
	if err != nil {
		sess.log.Warn().Err(err).Msg("audio decode failed")
		sess.sendError("decode audio failed")
		return
	}
	pcm = audio.ForEngine(pcm, sr)

	sess.mu.Lock()
	var trimmed bool
	sess.samples, trimmed = appendRolling(sess.samples, pcm)
	total := len(sess.samples)
	if trimmed {
		sess.log.Debug().Int("buffer_samples", total).Msg("trimmed buffer")
	}
	sess.mu.Unlock()

	sess.log.Debug().
		Int("chunk_samples", len(pcm)).
		Int("total_samples", total).
		Float64("duration_sec", float64(total)/whisper.SampleRate).
		Msg("audio chunk received")
}

// appendRolling appends pcm and drops the oldest audio in trimSamples steps
// until the buffer fits in maxBufferSamples.
func appendRolling(buf, pcm []float32) ([]float32, bool) {
	buf = append(buf, pcm...)
	over := len(buf) - maxBufferSamples
	if over <= 0 {
		return buf, false
	}
	drop := (over + trimSamples - 1) / trimSamples * trimSamples
	return append([]float32(nil), buf[drop:]...), true
}

// startTranscription runs the buffered audio through the engine in the
// background. Progress and segments stream to the client as they happen.
func (s *Server) startTranscription(sess *session) {
	sess.mu.Lock()
	if sess.busy {
		sess.mu.Unlock()
		sess.sendError("transcription in progress")
		return
	}
	samples := append([]float32(nil), sess.samples...)
	req := service.Request{Samples: samples, Threads: sess.threads, Prompt: sess.prompt}
	sess.busy = true
	sess.mu.Unlock()

	req.OnProgress = func(p int) {
		sess.send(map[string]any{"type": "progress", "value": p})
	}
	req.OnSegment = func(seg bridge.Segment) {
		sess.send(map[string]any{
			"type":  "segment",
			"index": seg.Index,
			"start": seg.Start,
			"end":   seg.End,
			"text":  seg.Text,
		})
	}

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		defer func() {
			sess.mu.Lock()
			sess.busy = false
			sess.mu.Unlock()
		}()

		start := time.Now()
		segs, err := s.svc.Transcribe(req)
		switch {
		case errors.Is(err, service.ErrNoSamples):
			sess.sendError("no audio buffered")
			return
		case errors.Is(err, service.ErrNotReady):
			sess.sendError("model not loaded")
			return
		case err != nil:
			sess.log.Error().Err(err).Msg("transcription failed")
			sess.sendError("transcription failed")
			return
		}
		sess.log.Info().
			Int("segments", len(segs)).
			Dur("elapsed", time.Since(start)).
			Msg("transcription finished")
		sess.send(map[string]any{"type": "result", "segments": segs})
	}()
}

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(x))
		return n
	default:
		return 0
	}
}
