package ops

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logLevelConfig struct {
	format Format
}

// LogLevelOption configures LogLevelGetHandler / LogLevelSetHandler.
type LogLevelOption func(*logLevelConfig)

// WithLogLevelDefaultFormat sets the default response format. Default is FormatText.
func WithLogLevelDefaultFormat(f Format) LogLevelOption {
	return func(c *logLevelConfig) { c.format = f }
}

func applyLogLevelOptions(opts []LogLevelOption) logLevelConfig {
	cfg := logLevelConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.format = normalizeFormat(cfg.format)
	return cfg
}

type logLevelResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Level string `json:"level,omitempty"`
	Old   string `json:"old,omitempty"`
}

// LogLevelGetHandler returns a handler that outputs the current level of lv.
//
// GET/HEAD only; other methods return 405.
func LogLevelGetHandler(lv zap.AtomicLevel, opts ...LogLevelOption) http.Handler {
	cfg := applyLogLevelOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeLogLevel(w, r, format, http.StatusMethodNotAllowed, logLevelResponse{Error: "method not allowed"})
			return
		}
		writeLogLevel(w, r, format, http.StatusOK, logLevelResponse{OK: true, Level: lv.Level().String()})
	})
}

// LogLevelSetHandler returns a handler that sets the level of lv.
//
// Input:
//   - POST only
//   - URL query: ?level=debug|info|warn|error (case-insensitive; "warning" and "err" are aliases)
func LogLevelSetHandler(lv zap.AtomicLevel, opts ...LogLevelOption) http.Handler {
	cfg := applyLogLevelOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeLogLevel(w, r, format, http.StatusMethodNotAllowed, logLevelResponse{Error: "method not allowed"})
			return
		}
		raw, _ := queryValue(r, "level")
		level, ok := parseLevel(raw)
		if !ok {
			writeLogLevel(w, r, format, http.StatusBadRequest, logLevelResponse{
				Error: "invalid level (want one of: debug, info, warn, error)",
			})
			return
		}
		old := lv.Level()
		lv.SetLevel(level)
		writeLogLevel(w, r, format, http.StatusOK, logLevelResponse{
			OK:    true,
			Level: level.String(),
			Old:   old.String(),
		})
	})
}

func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error", "err":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

func writeLogLevel(w http.ResponseWriter, r *http.Request, f Format, code int, resp logLevelResponse) {
	writeHeader(w, f, code)
	if r.Method == http.MethodHead {
		return
	}
	if f == FormatJSON {
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	if !resp.OK {
		writeTextError(w, resp.Error)
		return
	}
	if resp.Old != "" {
		_, _ = w.Write([]byte("log\told_level\t" + resp.Old + "\n"))
	}
	_, _ = w.Write([]byte("log\tlevel\t" + resp.Level + "\n"))
}
