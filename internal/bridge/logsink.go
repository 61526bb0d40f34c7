package bridge

import (
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/whisperbridge/internal/metrics"
	"github.com/obiente/translate/whisperbridge/internal/whisper"
)

// The engine log sink is process-wide and never uninstalled.
var logSinkInstalled atomic.Bool

// InitLogging routes engine diagnostics into the bridge's logger under
// component=whisper_cpp. Debug lines are dropped unless the binary is built
// with the whisper_debug tag. Only the first call in a process installs a
// sink; it reports whether this call did.
func (b *Bridge) InitLogging() bool {
	if !logSinkInstalled.CompareAndSwap(false, true) {
		b.log.Debug().Msg("engine log sink already installed")
		return false
	}
	logger := b.root.With().Str("component", "whisper_cpp").Logger()
	b.native.SetLogSink(engineLogSink(logger, b.metrics, debugBuild))
	return true
}

func engineLogSink(logger zerolog.Logger, m *metrics.Metrics, debug bool) whisper.LogSink {
	return func(level whisper.LogLevel, text string) {
		if level == whisper.LogDebug && !debug {
			return
		}
		text = strings.TrimRight(text, "\r\n")
		if strings.TrimSpace(text) == "" {
			return
		}
		if m != nil {
			m.RecordEngineLog(level.String())
		}

		var ev *zerolog.Event
		switch level {
		case whisper.LogError:
			ev = logger.Error()
		case whisper.LogWarn:
			ev = logger.Warn()
		case whisper.LogDebug:
			ev = logger.Debug()
		default:
			ev = logger.Info()
		}
		ev.Msg(text)
	}
}
