package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/evan-idocoding/lifekit/rt/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type nopTask struct{}

func (*nopTask) Cancel() {}

func newScopes(t *testing.T) (*scope.Manager, SourceFunc) {
	t.Helper()
	fc := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m := scope.NewManager(scope.WithManagerName("price"), scope.WithClock(fc))
	m.MustCreatePeriodic(time.Second, func(context.Context, uint64) {}, scope.WithName("price-ticker"))
	m.MustRegister(&nopTask{})
	t.Cleanup(m.Teardown)
	return m, func() []*scope.Manager { return []*scope.Manager{m, nil} }
}

func TestScopesSnapshot_Text(t *testing.T) {
	m, src := newScopes(t)
	w := serve(ScopesSnapshotHandler(src), http.MethodGet, "/scopes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	body := w.Body.String()
	assert.Contains(t, body, "scope\tprice\tid\t"+m.ID()+"\n")
	assert.Contains(t, body, "scope\tprice\tclosed\tfalse\n")
	assert.Contains(t, body, "scope\tprice\tregistered\t2\n")
	assert.Contains(t, body, "task\tprice/price-ticker\tkind\tperiodic\n")
	assert.Contains(t, body, "task\tprice/price-ticker\tperiod\t1s\n")
	assert.Contains(t, body, "task\tprice/unnamed#1\tkind\texternal\n")
}

func TestScopesSnapshot_JSON(t *testing.T) {
	m, src := newScopes(t)
	w := serve(ScopesSnapshotHandler(src, WithScopesDefaultFormat(FormatJSON)), http.MethodGet, "/scopes")
	require.Equal(t, http.StatusOK, w.Code)

	var got scopesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.True(t, got.OK)
	require.Len(t, got.Scopes, 1)
	s := got.Scopes[0]
	assert.Equal(t, m.ID(), s.ID)
	require.Len(t, s.Tasks, 2)
	assert.Equal(t, "price-ticker", s.Tasks[0].Name)
	assert.Equal(t, time.Second, s.Tasks[0].Period)
	assert.Equal(t, "active", s.Tasks[0].State)
	assert.Nil(t, s.Tasks[0].LastTick)
}

func TestScopesSnapshot_GuardHidesTasks(t *testing.T) {
	_, src := newScopes(t)
	w := serve(ScopesSnapshotHandler(src, WithTaskAllowPrefixes("other-")), http.MethodGet, "/scopes")
	body := w.Body.String()
	assert.Contains(t, body, "scope\tprice\tregistered\t2\n")
	assert.NotContains(t, body, "task\t")
}

func TestScopesSnapshot_ClosedScope(t *testing.T) {
	m, src := newScopes(t)
	m.Teardown()
	w := serve(ScopesSnapshotHandler(src), http.MethodGet, "/scopes")
	body := w.Body.String()
	assert.Contains(t, body, "scope\tprice\tclosed\ttrue\n")
	assert.Contains(t, body, "scope\tprice\tcancelled\t2\n")
	assert.NotContains(t, body, "task\t")
}

func TestScopesSnapshot_Methods(t *testing.T) {
	_, src := newScopes(t)
	w := serve(ScopesSnapshotHandler(src), http.MethodPut, "/scopes")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))

	w = serve(ScopesSnapshotHandler(src), http.MethodHead, "/scopes")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	assert.Panics(t, func() { ScopesSnapshotHandler(nil) })
}

func TestTaskCancel(t *testing.T) {
	m, src := newScopes(t)
	h := TaskCancelHandler(src)

	w := serve(h, http.MethodPost, "/tasks/cancel?scope=price&name=price-ticker")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "task_cancel\tprice/price-ticker\tcancelled\ttrue\n", w.Body.String())
	_, ok := m.Lookup("price-ticker")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	w = serve(h, http.MethodPost, "/tasks/cancel?scope="+m.ID()+"&name=price-ticker")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "task not found\n", w.Body.String())
}

func TestTaskCancel_Errors(t *testing.T) {
	_, src := newScopes(t)

	w := serve(TaskCancelHandler(src), http.MethodGet, "/tasks/cancel?scope=price&name=price-ticker")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))

	w = serve(TaskCancelHandler(src), http.MethodPost, "/tasks/cancel?scope=price")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(TaskCancelHandler(src), http.MethodPost, "/tasks/cancel?scope=nope&name=price-ticker&format=json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var got taskCancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "scope not found", got.Error)

	w = serve(TaskCancelHandler(src, WithTaskAllowNames("other")), http.MethodPost, "/tasks/cancel?scope=price&name=price-ticker")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEscapeTextField(t *testing.T) {
	assert.Equal(t, "plain", escapeTextField("plain"))
	assert.Equal(t, `a\tb\nc\\d\u0001`, escapeTextField("a\tb\nc\\d\x01"))
}
