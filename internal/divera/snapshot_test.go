package divera

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	var p pullResponse
	require.NoError(t, json.Unmarshal(fixture(t), &p))
	return &p.Data
}

func TestSnapshotUser(t *testing.T) {
	snap := loadSnapshot(t)
	assert.Equal(t, "Max Mustermann", snap.FullName())
	assert.Equal(t, "max@example.org", snap.Email())
	assert.Equal(t, "k3y-redacted", snap.AccessKey())
}

func TestStatusPlan(t *testing.T) {
	snap := loadSnapshot(t)

	// Names come back in statussorting order, not map order.
	want := []string{"Einsatzbereit", "Im Dienst", "Nicht einsatzbereit"}
	if diff := cmp.Diff(want, snap.StatusNames()); diff != "" {
		t.Fatalf("status names mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Nicht einsatzbereit", snap.UserStatusName())

	id, err := snap.StatusIDByName("Im Dienst")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	_, err = snap.StatusIDByName("Urlaub")
	assert.ErrorIs(t, err, ErrStatusNotFound)

	details := snap.UserStatusDetails()
	assert.Equal(t, 2, details.ID)
	assert.Equal(t, time.Unix(1735734000, 0), details.SetAt)
}

func TestLastAlarm(t *testing.T) {
	snap := loadSnapshot(t)

	assert.Equal(t, "B2 Wohnungsbrand", snap.LastAlarmTitle())
	assert.True(t, snap.HasOpenAlarms())

	d := snap.LastAlarmDetails()
	require.NotNil(t, d)
	assert.Equal(t, 801, d.ID)
	assert.Equal(t, "ILS-2025-4711", d.ForeignID)
	assert.Equal(t, time.Unix(1735732800, 0), d.Date)
	assert.Equal(t, "48.14", d.Latitude)
	assert.Equal(t, "11.58", d.Longitude)
	assert.True(t, d.Priority)
	assert.False(t, d.Closed)

	// Group 31 resolves locally, 77 via cross-unit metadata.
	want := []string{"Atemschutz", "Drehleiter (FF Nachbarstadt)"}
	if diff := cmp.Diff(want, d.Groups); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}

	// The active UCR answered with status 1.
	assert.Equal(t, "Einsatzbereit", d.Answered)
}

func TestAnsweredStateNotAnswered(t *testing.T) {
	snap := loadSnapshot(t)
	all := snap.AllAlarmDetails()
	require.Len(t, all, 2)
	assert.Equal(t, "not answered", all[1].Answered)
}

func TestAlarmsEmpty(t *testing.T) {
	snap := &Snapshot{}
	assert.Equal(t, StateUnknown, snap.LastAlarmTitle())
	assert.False(t, snap.HasOpenAlarms())
	assert.Nil(t, snap.LastAlarmDetails())
	assert.Empty(t, snap.AllAlarmDetails())
	assert.Equal(t, StateUnknown, snap.LastNewsTitle())
	assert.Nil(t, snap.LastNewsDetails())
	assert.Nil(t, snap.LastEvent())
}

func TestLastNews(t *testing.T) {
	snap := loadSnapshot(t)
	assert.Equal(t, "Übung am Samstag", snap.LastNewsTitle())

	d := snap.LastNewsDetails()
	require.NotNil(t, d)
	assert.Equal(t, 601, d.ID)
	assert.Equal(t, []string{"Atemschutz"}, d.Groups)
	assert.True(t, d.New)
}

func TestEventsBetween(t *testing.T) {
	snap := loadSnapshot(t)

	last := snap.LastEvent()
	require.NotNil(t, last)
	assert.Equal(t, "Monatsübung", last.Summary)
	assert.Equal(t, "Gerätehaus", last.Location)

	start := time.Unix(1735900000, 0)
	end := time.Unix(1736000000, 0)
	events := snap.EventsBetween(start, end)
	require.Len(t, events, 1)
	assert.Equal(t, 701, events[0].UID)

	// Open-ended range catches both.
	events = snap.EventsBetween(time.Unix(0, 0), time.Unix(2000000000, 0))
	assert.Len(t, events, 2)
}

func TestVehicles(t *testing.T) {
	snap := loadSnapshot(t)

	assert.Equal(t, []string{"501", "502"}, snap.VehicleIDs())

	status, err := snap.VehicleStatus("501")
	require.NoError(t, err)
	assert.Equal(t, "2", status)

	// Vehicle without FMS status reports "unknown".
	status, err = snap.VehicleStatus("502")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, status)

	_, err = snap.VehicleStatus("999")
	assert.Error(t, err)

	d, err := snap.VehicleDetails("501")
	require.NoError(t, err)
	assert.Equal(t, "Florian Musterstadt 44", d.Name)
	assert.Equal(t, "BYFWMUS000044", d.OPTA)
	assert.Equal(t, time.Unix(1735730000, 0), d.FMSStatusAt)
}

func TestUCRHelpers(t *testing.T) {
	snap := loadSnapshot(t)

	assert.Equal(t, []int{17001, 17002}, snap.UCRIDs())
	assert.Equal(t, 2, snap.UCRCount())
	assert.Equal(t, "FF Musterstadt", snap.UCRName(17001))
	assert.Equal(t, 9002, snap.ClusterID(17002))
	assert.Equal(t, []string{"FF Musterstadt", "DRK Musterstadt"}, snap.UCRNames([]int{17001, 17002}))
	assert.Equal(t, []int{17002}, snap.UCRIDsByName([]string{"DRK Musterstadt"}))
	assert.True(t, snap.UsergroupSupported())

	snap.UCR["17001"] = UCRInfo{Name: "x", UsergroupID: 2}
	assert.False(t, snap.UsergroupSupported())
}

func TestClusterVersion(t *testing.T) {
	cases := []struct {
		id   int
		want string
	}{
		{1, VersionFree},
		{2, VersionAlarm},
		{3, VersionPro},
		{99, VersionUnknown},
	}
	for _, tc := range cases {
		s := &Snapshot{Cluster: Cluster{VersionID: tc.id}}
		assert.Equal(t, tc.want, s.ClusterVersion())
	}
}
