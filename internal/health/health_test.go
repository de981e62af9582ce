package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }
func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestHealthNoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestHealthVerboseAggregatesStatus(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "ok", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "slow", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Nil(t, resp.Checks, "non-verbose omits component checks")

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestReadyUnhealthyComponentBlocksReadiness(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "ok", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeHealthAlways200(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady503UntilReady(t *testing.T) {
	down := &mockChecker{name: "poll", status: StatusUnhealthy}
	m := NewManager("v1.0.0")
	m.RegisterChecker(down)

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	down.status = StatusHealthy
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPollChecker(t *testing.T) {
	ready := false
	last := time.Now()
	c := NewPollChecker(
		func() bool { return ready },
		func() []int { return []int{17001} },
		func(int) time.Time { return last },
		3*time.Minute,
	)

	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)

	ready = true
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	last = time.Now().Add(-10 * time.Minute)
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

type fakeVerifyingStore struct {
	fakePinger
	problems  []string
	verifyErr error
}

func (f *fakeVerifyingStore) Verify(_ context.Context) ([]string, error) {
	return f.problems, f.verifyErr
}

func TestStoreChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewStoreChecker(nil).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewStoreChecker(&fakePinger{}).Check(context.Background()).Status)

	res := NewStoreChecker(&fakePinger{err: errors.New("locked")}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "locked", res.Error)
}

func TestStoreCheckerSurfacesIntegrityProblems(t *testing.T) {
	ok := &fakeVerifyingStore{}
	assert.Equal(t, StatusHealthy, NewStoreChecker(ok).Check(context.Background()).Status)

	corrupt := &fakeVerifyingStore{problems: []string{"row 12 missing from index idx_alarms_date"}}
	res := NewStoreChecker(corrupt).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "idx_alarms_date")

	broken := &fakeVerifyingStore{verifyErr: errors.New("file vanished")}
	res = NewStoreChecker(broken).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "file vanished", res.Error)
}
