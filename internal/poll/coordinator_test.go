package poll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/N1c093/diverad/internal/divera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	mu        sync.Mutex
	snap      *divera.Snapshot
	pullErr   error
	pulls     int
	setStatus []int
	setErr    error
}

func (f *fakeClient) PullAll(_ context.Context) (*divera.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.snap, nil
}

func (f *fakeClient) SetStatusByID(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.setStatus = append(f.setStatus, id)
	return nil
}

func (f *fakeClient) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

type recordingArchive struct {
	mu       sync.Mutex
	alarms   []divera.AlarmDetails
	news     []divera.NewsDetails
	statuses []divera.UserStatusDetails
}

func (r *recordingArchive) UpsertAlarm(_ context.Context, _ int, d divera.AlarmDetails) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alarms = append(r.alarms, d)
	return nil
}

func (r *recordingArchive) UpsertNews(_ context.Context, _ int, d divera.NewsDetails) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.news = append(r.news, d)
	return nil
}

func (r *recordingArchive) AppendStatus(_ context.Context, _ int, d divera.UserStatusDetails) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, d)
	return nil
}

func testSnapshot(statusID, alarmID int) *divera.Snapshot {
	return &divera.Snapshot{
		UCRActive:  17001,
		UCRDefault: 17001,
		Status:    divera.UserStatus{StatusID: statusID, SetAtUnix: 1000},
		Cluster: divera.Cluster{
			Status: map[string]divera.Status{
				"1": {Name: "Einsatzbereit"},
				"2": {Name: "Nicht einsatzbereit"},
			},
			StatusSorting: []int{1, 2},
		},
		Alarms: divera.AlarmList{
			Items: map[string]divera.Alarm{
				"801": {ID: alarmID, Title: "Brand", DateUnix: 2000},
			},
			Sorting: []int{801},
		},
		UCR: map[string]divera.UCRInfo{"17001": {Name: "FF", UsergroupID: 8}},
	}
}

func TestRunPollsImmediatelyAndServesSnapshot(t *testing.T) {
	fc := &fakeClient{snap: testSnapshot(1, 801)}
	c := NewCoordinator(17001, fc, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, c.Ready, time.Second, 5*time.Millisecond)
	require.NotNil(t, c.Snapshot())
	assert.Equal(t, "Einsatzbereit", c.Snapshot().UserStatusName())
	assert.False(t, c.LastSuccess().IsZero())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFailedPollKeepsLastGoodSnapshot(t *testing.T) {
	fc := &fakeClient{snap: testSnapshot(1, 801)}
	c := NewCoordinator(17001, fc, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	require.Eventually(t, c.Ready, time.Second, 5*time.Millisecond)

	fc.mu.Lock()
	fc.pullErr = divera.ErrConnection
	fc.mu.Unlock()

	require.Error(t, c.ForceRefresh(ctx))
	assert.NotNil(t, c.Snapshot(), "snapshot must survive a failed poll")
	assert.Equal(t, "Einsatzbereit", c.Snapshot().UserStatusName())

	cancel()
	<-done
}

func TestForceRefresh(t *testing.T) {
	fc := &fakeClient{snap: testSnapshot(1, 801)}
	c := NewCoordinator(17001, fc, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	require.Eventually(t, c.Ready, time.Second, 5*time.Millisecond)

	before := fc.pullCount()
	require.NoError(t, c.ForceRefresh(ctx))
	assert.Greater(t, fc.pullCount(), before)

	cancel()
	<-done
}

func TestSetStatusWritesAndRefreshes(t *testing.T) {
	fc := &fakeClient{snap: testSnapshot(1, 801)}
	c := NewCoordinator(17001, fc, time.Hour)

	require.NoError(t, c.SetStatus(context.Background(), 2))
	assert.Equal(t, []int{2}, fc.setStatus)
	assert.NotNil(t, c.Snapshot(), "status write triggers a refresh")
}

func TestSetStatusFailureDoesNotRefresh(t *testing.T) {
	fc := &fakeClient{snap: testSnapshot(1, 801), setErr: divera.ErrAuth}
	c := NewCoordinator(17001, fc, time.Hour)

	require.Error(t, c.SetStatus(context.Background(), 2))
	assert.Nil(t, c.Snapshot())
	assert.Zero(t, fc.pullCount())
}

func TestChangeDetectionArchivesTransitions(t *testing.T) {
	fc := &fakeClient{snap: testSnapshot(1, 801)}
	arch := &recordingArchive{}
	c := NewCoordinator(17001, fc, time.Hour, WithArchiver(arch))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	require.Eventually(t, c.Ready, time.Second, 5*time.Millisecond)

	// Initial poll archives alarms but no status transition (seed).
	arch.mu.Lock()
	assert.NotEmpty(t, arch.alarms)
	assert.Empty(t, arch.statuses)
	arch.mu.Unlock()

	// Status change on the next poll lands in the log.
	fc.mu.Lock()
	fc.snap = testSnapshot(2, 801)
	fc.mu.Unlock()
	require.NoError(t, c.ForceRefresh(ctx))

	arch.mu.Lock()
	require.Len(t, arch.statuses, 1)
	assert.Equal(t, 2, arch.statuses[0].ID)
	arch.mu.Unlock()

	cancel()
	<-done
}

func TestSetIntervalTakesEffect(t *testing.T) {
	fc := &fakeClient{snap: testSnapshot(1, 801)}
	c := NewCoordinator(17001, fc, time.Minute)

	c.SetInterval(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, c.nextInterval())

	c.SetInterval(0)
	assert.Equal(t, 5*time.Minute, c.nextInterval(), "non-positive intervals are ignored")
}

func TestNextIntervalBacksOff(t *testing.T) {
	fc := &fakeClient{pullErr: divera.ErrConnection}
	c := NewCoordinator(17001, fc, time.Minute)

	assert.Equal(t, time.Minute, c.nextInterval())

	for i := 0; i < 3; i++ {
		_ = c.refreshOnce(context.Background())
	}
	assert.Equal(t, 8*time.Minute, c.nextInterval())

	for i := 0; i < 10; i++ {
		_ = c.refreshOnce(context.Background())
	}
	assert.Equal(t, 10*time.Minute, c.nextInterval(), "backoff is capped")
}
