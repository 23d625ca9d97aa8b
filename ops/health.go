package ops

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/evan-idocoding/lifekit/rt/scope"
)

type healthConfig struct {
	format Format
}

// HealthOption configures HealthzHandler / ReadyzHandler.
type HealthOption func(*healthConfig)

// WithHealthDefaultFormat sets the default response format for health handlers.
// Default is FormatText.
func WithHealthDefaultFormat(f Format) HealthOption {
	return func(c *healthConfig) { c.format = f }
}

func applyHealthOptions(opts []HealthOption) healthConfig {
	cfg := healthConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.format = normalizeFormat(cfg.format)
	return cfg
}

// HealthzHandler returns a liveness handler. It always responds 200 OK for GET/HEAD.
func HealthzHandler(opts ...HealthOption) http.Handler {
	cfg := applyHealthOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeHealth(w, r, format, http.StatusMethodNotAllowed, healthResponse{Error: "method not allowed"})
			return
		}
		writeHealth(w, r, format, http.StatusOK, healthResponse{OK: true})
	})
}

// ScopeReadiness is the readiness of one required scope.
type ScopeReadiness struct {
	Scope string `json:"scope"`
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Tasks int    `json:"tasks"`
	Error string `json:"error,omitempty"`
}

// ReadyzReport is a point-in-time readiness report.
type ReadyzReport struct {
	OK     bool             `json:"ok"`
	Scopes []ScopeReadiness `json:"scopes,omitempty"`
}

// ReadyzHandler returns a readiness handler. It responds 200 when every named scope has an
// open manager in src, and 503 otherwise. GET/HEAD only.
//
// A nil src, no names, or an empty name panics.
func ReadyzHandler(src Source, names []string, opts ...HealthOption) http.Handler {
	if src == nil {
		panic("ops: ReadyzHandler called with nil Source")
	}
	if len(names) == 0 {
		panic("ops: ReadyzHandler called without scope names")
	}
	for i, n := range names {
		if n == "" {
			panic(fmt.Sprintf("ops: ReadyzHandler scope name[%d] is empty", i))
		}
	}
	cfg := applyHealthOptions(opts)
	required := append([]string(nil), names...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeReady(w, r, format, http.StatusMethodNotAllowed, ReadyzReport{
				Scopes: []ScopeReadiness{{Scope: "method", Error: "method not allowed"}},
			})
			return
		}
		rep := Readiness(src, required)
		code := http.StatusOK
		if !rep.OK {
			code = http.StatusServiceUnavailable
		}
		writeReady(w, r, format, code, rep)
	})
}

// Readiness reports, for each name, whether src holds an open scope with that name.
func Readiness(src Source, names []string) ReadyzReport {
	open := make(map[string]*scope.Manager)
	closed := make(map[string]bool)
	for _, m := range src.Scopes() {
		if m == nil {
			continue
		}
		if m.Closed() {
			closed[m.Name()] = true
			continue
		}
		if _, ok := open[m.Name()]; !ok {
			open[m.Name()] = m
		}
	}

	rep := ReadyzReport{OK: true, Scopes: make([]ScopeReadiness, 0, len(names))}
	for _, n := range names {
		sr := ScopeReadiness{Scope: n}
		switch m, ok := open[n]; {
		case ok:
			sr.OK, sr.ID, sr.Tasks = true, m.ID(), m.Len()
		case closed[n]:
			sr.Error = "scope closed"
		default:
			sr.Error = "scope not found"
		}
		if !sr.OK {
			rep.OK = false
		}
		rep.Scopes = append(rep.Scopes, sr)
	}
	return rep
}

type healthResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeHeader(w http.ResponseWriter, f Format, code int) {
	w.Header().Set("Cache-Control", "no-store")
	if f == FormatJSON {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(code)
}

func writeHealth(w http.ResponseWriter, r *http.Request, f Format, code int, resp healthResponse) {
	writeHeader(w, f, code)
	if r.Method == http.MethodHead {
		return
	}
	if f == FormatJSON {
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	if resp.OK {
		_, _ = w.Write([]byte("ok\n"))
		return
	}
	writeTextError(w, resp.Error)
}

func writeReady(w http.ResponseWriter, r *http.Request, f Format, code int, rep ReadyzReport) {
	writeHeader(w, f, code)
	if r.Method == http.MethodHead {
		return
	}
	if f == FormatJSON {
		_ = json.NewEncoder(w).Encode(rep)
		return
	}
	if rep.OK {
		_, _ = w.Write([]byte("ok\n"))
		return
	}
	for _, sr := range rep.Scopes {
		if sr.OK {
			continue
		}
		line := "fail " + sr.Scope
		if sr.Error != "" {
			line += ": " + escapeTextField(sr.Error)
		}
		_, _ = w.Write([]byte(line + "\n"))
	}
}
