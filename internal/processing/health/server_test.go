package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/core/task"
	"github.com/vietddude/verdict/internal/infra/llm/cooldown"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
)

type stubBackend struct {
	id     domain.BackendIdentity
	health provider.Health
}

func (b stubBackend) Identity() domain.BackendIdentity { return b.id }
func (b stubBackend) Health() provider.Health          { return b.health }

type stubItems struct {
	items   []domain.WorkItem
	cleared bool
}

func (s *stubItems) Items() []domain.WorkItem { return s.items }

func (s *stubItems) Submit(ctx context.Context, input string) (domain.WorkItem, bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.WorkItem{}, false, task.ErrEmptyInput
	}
	for _, it := range s.items {
		if it.Input == input {
			return it, true, nil
		}
	}
	it := domain.WorkItem{ID: len(s.items) + 1, Input: input}
	s.items = append(s.items, it)
	return it, false, nil
}

func (s *stubItems) Retry(ctx context.Context, id int) (domain.WorkItem, bool, error) {
	for _, it := range s.items {
		if it.ID == id {
			return it, true, nil
		}
	}
	return domain.WorkItem{}, false, nil
}

func (s *stubItems) Remove(ctx context.Context, id int) (bool, error) {
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *stubItems) Clear(ctx context.Context) error {
	s.items = nil
	s.cleared = true
	return nil
}

var (
	flash = domain.BackendIdentity{Provider: "gemini", Model: "gemini-2.5-flash"}
	mini  = domain.BackendIdentity{Provider: "openai", Model: "gpt-4o-mini"}
)

func newTestServer(t *testing.T, reg *cooldown.Registry, backends ...Backend) (*httptest.Server, *stubItems) {
	t.Helper()
	items := &stubItems{}
	srv := NewServer(NewMonitor(backends, reg), map[domain.ItemKind]ItemService{
		domain.ItemKindVerification: items,
	}, Options{CORSOrigins: []string{"http://localhost:3000"}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, items
}

func TestMonitor_Statuses(t *testing.T) {
	reg := cooldown.NewRegistry(context.Background(), nil)
	reg.ReportLimitHit(flash, time.Minute)

	report := NewMonitor([]Backend{stubBackend{id: flash}, stubBackend{id: mini}}, reg).CheckHealth()
	assert.Equal(t, StatusDegraded, report.SystemStatus)
	require.Len(t, report.Backends, 2)
	assert.Equal(t, StatusDegraded, report.Backends[0].Status)
	assert.NotEmpty(t, report.Backends[0].CoolingFor)
	assert.Equal(t, StatusHealthy, report.Backends[1].Status)
	require.Len(t, report.Cooldowns, 1)
	assert.Equal(t, flash, report.Cooldowns[0].Identity)

	failing := stubBackend{id: mini, health: provider.Health{Failures: 6, LastFailureAt: time.Now()}}
	report = NewMonitor([]Backend{stubBackend{id: flash}, failing}, reg).CheckHealth()
	assert.Equal(t, StatusCritical, report.SystemStatus)
	assert.Equal(t, StatusCritical, report.Backends[1].Status)
}

func TestMonitor_EmptyChainIsCritical(t *testing.T) {
	report := NewMonitor(nil, cooldown.NewRegistry(context.Background(), nil)).CheckHealth()
	assert.Equal(t, StatusCritical, report.SystemStatus)
	assert.NotNil(t, report.Cooldowns)
}

func TestHealthEndpoints(t *testing.T) {
	reg := cooldown.NewRegistry(context.Background(), nil)
	ts, _ := newTestServer(t, reg, stubBackend{id: flash})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])

	reg.ReportLimitHit(flash, time.Minute)
	resp2, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)

	resp3, err := http.Get(ts.URL + "/cooldowns")
	require.NoError(t, err)
	defer resp3.Body.Close()
	var entries []domain.CooldownEntry
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, flash, entries[0].Identity)

	resp4, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)
}

func TestItemEndpoints(t *testing.T) {
	ts, items := newTestServer(t, cooldown.NewRegistry(context.Background(), nil), stubBackend{id: flash})
	base := ts.URL + "/items/verification"

	resp, err := http.Post(base, "application/json", strings.NewReader(`{"input":"The sky is blue"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(base, "application/json", strings.NewReader(`{"input":"The sky is blue"}`))
	require.NoError(t, err)
	var again itemResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&again))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, again.Existed)

	resp, err = http.Post(base, "application/json", strings.NewReader(`{"input":"  "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(base)
	require.NoError(t, err)
	var list []domain.WorkItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)

	resp, err = http.Post(base+"/1/retry", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(base+"/9/retry", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(base+"/abc/retry", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, base+"/1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, items.items)

	req, _ = http.NewRequest(http.MethodDelete, base, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, items.cleared)

	resp, err = http.Get(ts.URL + "/items/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, cooldown.NewRegistry(context.Background(), nil))

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/items/verification", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

type stubPinger struct{ err error }

func (p stubPinger) Health(context.Context) error { return p.err }

func TestMonitor_StorageProbe(t *testing.T) {
	reg := cooldown.NewRegistry(context.Background(), nil)

	report := NewMonitor([]Backend{stubBackend{id: flash}}, reg).WithStorage(stubPinger{}).CheckHealth()
	assert.Equal(t, StatusHealthy, report.SystemStatus)
	assert.Equal(t, "ok", report.Storage)

	report = NewMonitor([]Backend{stubBackend{id: flash}}, reg).
		WithStorage(stubPinger{err: errors.New("connection refused")}).CheckHealth()
	assert.Equal(t, StatusCritical, report.SystemStatus)
	assert.Equal(t, "connection refused", report.Storage)
}

func TestItemList_IncludesLiveCountdown(t *testing.T) {
	ts, items := newTestServer(t, cooldown.NewRegistry(context.Background(), nil), stubBackend{id: flash})
	items.items = []domain.WorkItem{{
		ID:    1,
		Input: "The sky is green",
		Checks: map[string]domain.CheckState{
			domain.CheckExact: {Status: domain.StatusNotFound},
			domain.CheckFuzzy: {Status: domain.StatusRateLimited, Progress: "Rate limited. Retrying in 4.8s..."},
		},
	}}

	resp, err := http.Get(ts.URL + "/items/verification")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []itemView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	fuzzy := list[0].Checks[domain.CheckFuzzy]
	assert.Equal(t, domain.StatusRateLimited, fuzzy.Status)
	assert.Equal(t, "Rate limited. Retrying in 4.8s...", fuzzy.Progress)
	assert.Empty(t, list[0].Checks[domain.CheckExact].Progress)
}
