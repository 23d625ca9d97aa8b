package ops

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/evan-idocoding/lifekit/rt/scope"
)

// Source lists the scope managers to expose. Nil entries are skipped.
type Source interface {
	Scopes() []*scope.Manager
}

// SourceFunc adapts a function to Source.
type SourceFunc func() []*scope.Manager

func (f SourceFunc) Scopes() []*scope.Manager { return f() }

type scopesConfig struct {
	format Format
	guards []func(name string) bool
}

// ScopesOption configures scope handlers.
type ScopesOption func(*scopesConfig)

// WithScopesDefaultFormat sets the default response format. Default is FormatText.
func WithScopesDefaultFormat(f Format) ScopesOption {
	return func(c *scopesConfig) { c.format = f }
}

// WithTaskNameGuard appends a task name guard. Guards are combined with AND.
//
// With a guard in effect, unnamed tasks are hidden from snapshots and cannot be cancelled.
func WithTaskNameGuard(fn func(name string) bool) ScopesOption {
	return func(c *scopesConfig) {
		if fn != nil {
			c.guards = append(c.guards, fn)
		}
	}
}

// WithTaskAllowPrefixes restricts task names to the provided prefixes.
// If no non-empty prefix is provided, all names are denied.
func WithTaskAllowPrefixes(prefixes ...string) ScopesOption {
	var ps []string
	for _, p := range prefixes {
		if p != "" {
			ps = append(ps, p)
		}
	}
	return WithTaskNameGuard(func(name string) bool {
		for _, p := range ps {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	})
}

// WithTaskAllowNames restricts task names to an explicit set.
// If no non-empty name is provided, all names are denied.
func WithTaskAllowNames(names ...string) ScopesOption {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return WithTaskNameGuard(func(name string) bool {
		_, ok := set[name]
		return ok
	})
}

func applyScopesOptions(opts []ScopesOption) scopesConfig {
	cfg := scopesConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.format = normalizeFormat(cfg.format)
	return cfg
}

func (c scopesConfig) allowed(name string) bool {
	if len(c.guards) == 0 {
		return true
	}
	if name == "" {
		return false
	}
	for _, g := range c.guards {
		if !g(name) {
			return false
		}
	}
	return true
}

// ScopesSnapshotHandler returns a handler that outputs a snapshot of every scope of src.
//
// GET/HEAD only; other methods return 405.
func ScopesSnapshotHandler(src Source, opts ...ScopesOption) http.Handler {
	if src == nil {
		panic("ops: nil scope Source")
	}
	cfg := applyScopesOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeScopes(w, r, format, http.StatusMethodNotAllowed, scopesResponse{Error: "method not allowed"})
			return
		}
		var items []scopeSnapshot
		for _, m := range src.Scopes() {
			if m == nil {
				continue
			}
			items = append(items, toScopeSnapshot(m.Snapshot(), cfg))
		}
		writeScopes(w, r, format, http.StatusOK, scopesResponse{OK: true, Scopes: items})
	})
}

// TaskCancelHandler returns a handler that cancels one live task.
//
// Input:
//   - POST only
//   - URL query: ?scope=<scope name or id>&name=<task name>
//
// Output: 200 when cancelled, 400 on missing parameters, 403 when the name is not allowed,
// 404 when the scope or the task is not found.
func TaskCancelHandler(src Source, opts ...ScopesOption) http.Handler {
	if src == nil {
		panic("ops: nil scope Source")
	}
	cfg := applyScopesOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeTaskCancel(w, format, http.StatusMethodNotAllowed, taskCancelResponse{Error: "method not allowed"})
			return
		}
		scopeKey, _ := queryValue(r, "scope")
		name, _ := queryValue(r, "name")
		if scopeKey == "" || name == "" {
			writeTaskCancel(w, format, http.StatusBadRequest, taskCancelResponse{Error: "missing scope or name"})
			return
		}
		resp := taskCancelResponse{Scope: scopeKey, Name: name}
		if !cfg.allowed(name) {
			resp.Error = "name not allowed"
			writeTaskCancel(w, format, http.StatusForbidden, resp)
			return
		}
		m := findScope(src, scopeKey)
		if m == nil {
			resp.Error = "scope not found"
			writeTaskCancel(w, format, http.StatusNotFound, resp)
			return
		}
		h, ok := m.Lookup(name)
		if !ok {
			resp.Error = "task not found"
			writeTaskCancel(w, format, http.StatusNotFound, resp)
			return
		}
		h.Cancel()
		resp.OK = true
		resp.Cancelled = true
		writeTaskCancel(w, format, http.StatusOK, resp)
	})
}

// findScope matches by id first, then by the first open scope with that name.
func findScope(src Source, key string) *scope.Manager {
	var byName *scope.Manager
	for _, m := range src.Scopes() {
		if m == nil {
			continue
		}
		if m.ID() == key {
			return m
		}
		if byName == nil && m.Name() == key && !m.Closed() {
			byName = m
		}
	}
	return byName
}

type taskSnapshot struct {
	// Name is the configured task name (may be empty).
	Name string `json:"name"`
	// DisplayName is always non-empty; unnamed tasks render as "unnamed#<index>".
	DisplayName string `json:"display_name"`

	Kind   string        `json:"kind"`
	State  string        `json:"state"`
	Period time.Duration `json:"period,omitempty"`
	Ticks  uint64        `json:"ticks"`
	Panics uint64        `json:"panics"`

	RegisteredAt time.Time  `json:"registered_at"`
	LastTick     *time.Time `json:"last_tick,omitempty"`
}

type scopeSnapshot struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Closed     bool           `json:"closed"`
	Registered uint64         `json:"registered"`
	Cancelled  uint64         `json:"cancelled"`
	Tasks      []taskSnapshot `json:"tasks,omitempty"`
}

type scopesResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Scopes []scopeSnapshot `json:"scopes,omitempty"`
}

func toScopeSnapshot(s scope.Snapshot, cfg scopesConfig) scopeSnapshot {
	out := scopeSnapshot{
		ID:         s.ScopeID,
		Name:       s.ScopeName,
		Closed:     s.Closed,
		Registered: s.Registered,
		Cancelled:  s.Cancelled,
	}
	for i, st := range s.Tasks {
		if !cfg.allowed(st.Name) {
			continue
		}
		display := st.Name
		if display == "" {
			display = fmt.Sprintf("unnamed#%d", i)
		}
		item := taskSnapshot{
			Name:         st.Name,
			DisplayName:  display,
			Kind:         st.Kind.String(),
			State:        st.State.String(),
			Period:       st.Period,
			Ticks:        st.Ticks,
			Panics:       st.Panics,
			RegisteredAt: st.RegisteredAt,
		}
		if !st.LastTick.IsZero() {
			t := st.LastTick
			item.LastTick = &t
		}
		out.Tasks = append(out.Tasks, item)
	}
	return out
}

func writeScopes(w http.ResponseWriter, r *http.Request, f Format, code int, resp scopesResponse) {
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
	_, _ = w.Write([]byte(renderScopesText(resp.Scopes)))
}

// renderScopesText renders one line per field:
//
//	scope\t<scope>\t<field>\t<value>
//	task\t<scope>/<task>\t<field>\t<value>
//
// <scope> is the scope name, or its id when unnamed.
func renderScopesText(scopes []scopeSnapshot) string {
	var b strings.Builder
	b.Grow(256)
	write := func(kind, key, field, value string) {
		b.WriteString(kind)
		b.WriteByte('\t')
		b.WriteString(escapeTextField(key))
		b.WriteByte('\t')
		b.WriteString(field)
		b.WriteByte('\t')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	for _, s := range scopes {
		sk := s.Name
		if sk == "" {
			sk = s.ID
		}
		write("scope", sk, "id", s.ID)
		write("scope", sk, "closed", strconv.FormatBool(s.Closed))
		write("scope", sk, "registered", strconv.FormatUint(s.Registered, 10))
		write("scope", sk, "cancelled", strconv.FormatUint(s.Cancelled, 10))
		for _, t := range s.Tasks {
			tk := sk + "/" + t.DisplayName
			write("task", tk, "kind", t.Kind)
			write("task", tk, "state", t.State)
			if t.Period > 0 {
				write("task", tk, "period", t.Period.String())
				write("task", tk, "ticks", strconv.FormatUint(t.Ticks, 10))
				write("task", tk, "panics", strconv.FormatUint(t.Panics, 10))
			}
			if t.LastTick != nil {
				write("task", tk, "last_tick", t.LastTick.Format(time.RFC3339Nano))
			}
		}
	}
	return b.String()
}

type taskCancelResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Scope     string `json:"scope,omitempty"`
	Name      string `json:"name,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

func writeTaskCancel(w http.ResponseWriter, f Format, code int, resp taskCancelResponse) {
	writeHeader(w, f, code)
	if f == FormatJSON {
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	if !resp.OK {
		writeTextError(w, escapeTextField(resp.Error))
		return
	}
	_, _ = fmt.Fprintf(w, "task_cancel\t%s/%s\tcancelled\ttrue\n", escapeTextField(resp.Scope), escapeTextField(resp.Name))
}
