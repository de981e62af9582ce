package divera

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// StateUnknown mirrors the value reported when a collection is empty or a
// lookup misses.
const StateUnknown = "unknown"

// Cluster subscription tiers, derived from the cluster's version id.
const (
	VersionFree    = "Free"
	VersionAlarm   = "Alarm"
	VersionPro     = "Pro"
	VersionUnknown = "Unknown"
)

// Usergroup ids of regular users. Monitor and admin accounts pull a payload
// shape this daemon does not support.
var supportedUsergroups = map[int]bool{4: true, 8: true}

// FullName returns the user's first and last name joined.
func (s *Snapshot) FullName() string {
	return s.User.FirstName + " " + s.User.LastName
}

// Email returns the account email, which doubles as the stable account id.
func (s *Snapshot) Email() string {
	return s.User.Email
}

// AccessKey returns the access key echoed back by the API.
func (s *Snapshot) AccessKey() string {
	return s.User.AccessKey
}

// ClusterVersion maps the cluster's version id to its subscription tier name.
func (s *Snapshot) ClusterVersion() string {
	switch s.Cluster.VersionID {
	case 1:
		return VersionFree
	case 2:
		return VersionAlarm
	case 3:
		return VersionPro
	default:
		return VersionUnknown
	}
}

// StatusNames returns all status names of the unit's status plan in the
// order given by statussorting.
func (s *Snapshot) StatusNames() []string {
	names := make([]string, 0, len(s.Cluster.StatusSorting))
	for _, id := range s.Cluster.StatusSorting {
		names = append(names, s.StatusNameByID(id))
	}
	return names
}

// StatusNameByID resolves a status id against the status plan.
func (s *Snapshot) StatusNameByID(id int) string {
	st, ok := s.Cluster.Status[strconv.Itoa(id)]
	if !ok {
		return StateUnknown
	}
	return st.Name
}

// StatusIDByName resolves a status name against the status plan. Returns
// ErrStatusNotFound when the name is not part of the plan.
func (s *Snapshot) StatusIDByName(name string) (int, error) {
	for _, id := range s.Cluster.StatusSorting {
		if st, ok := s.Cluster.Status[strconv.Itoa(id)]; ok && st.Name == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrStatusNotFound, name)
}

// UserStatusName returns the name of the user's current availability status.
func (s *Snapshot) UserStatusName() string {
	return s.StatusNameByID(s.Status.StatusID)
}

// UserStatusDetails describes the user's current availability.
type UserStatusDetails struct {
	ID    int       `json:"id"`
	Name  string    `json:"name"`
	SetAt time.Time `json:"set_at"`
}

// UserStatusDetails returns id, name and set-time of the current status.
func (s *Snapshot) UserStatusDetails() UserStatusDetails {
	return UserStatusDetails{
		ID:    s.Status.StatusID,
		Name:  s.UserStatusName(),
		SetAt: time.Unix(s.Status.SetAtUnix, 0),
	}
}

// GroupName resolves a group id to its name, or "" when unknown.
func (s *Snapshot) GroupName(id int) string {
	g, ok := s.Cluster.Groups[strconv.Itoa(id)]
	if !ok {
		return ""
	}
	return g.Name
}

// AlarmDetails is the derived view of a single alarm.
type AlarmDetails struct {
	ID            int       `json:"id"`
	ForeignID     string    `json:"foreign_id,omitempty"`
	Title         string    `json:"title"`
	Text          string    `json:"text"`
	Date          time.Time `json:"date"`
	Address       string    `json:"address"`
	Latitude      string    `json:"latitude"`
	Longitude     string    `json:"longitude"`
	Groups        []string  `json:"groups"`
	Priority      bool      `json:"priority"`
	Closed        bool      `json:"closed"`
	New           bool      `json:"new"`
	SelfAddressed bool      `json:"self_addressed"`
	Answered      string    `json:"answered"`
}

// LastAlarmTitle returns the newest alarm's title, or "unknown" when the
// unit has no alarms.
func (s *Snapshot) LastAlarmTitle() string {
	a, ok := s.lastAlarm()
	if !ok {
		return StateUnknown
	}
	return a.Title
}

// HasOpenAlarms reports whether at least one alarm is not closed.
func (s *Snapshot) HasOpenAlarms() bool {
	for _, id := range s.Alarms.Sorting {
		if a, ok := s.Alarms.Items[strconv.Itoa(id)]; ok && !a.Closed {
			return true
		}
	}
	return false
}

// LastAlarmDetails returns the derived view of the newest alarm, or nil when
// the unit has no alarms.
func (s *Snapshot) LastAlarmDetails() *AlarmDetails {
	a, ok := s.lastAlarm()
	if !ok {
		return nil
	}
	d := s.alarmDetails(a)
	return &d
}

// AllAlarmDetails returns every alarm in sorting order (newest first).
func (s *Snapshot) AllAlarmDetails() []AlarmDetails {
	out := make([]AlarmDetails, 0, len(s.Alarms.Sorting))
	for _, id := range s.Alarms.Sorting {
		if a, ok := s.Alarms.Items[strconv.Itoa(id)]; ok {
			out = append(out, s.alarmDetails(a))
		}
	}
	return out
}

func (s *Snapshot) lastAlarm() (Alarm, bool) {
	if len(s.Alarms.Sorting) == 0 {
		return Alarm{}, false
	}
	a, ok := s.Alarms.Items[strconv.Itoa(s.Alarms.Sorting[0])]
	return a, ok
}

func (s *Snapshot) alarmDetails(a Alarm) AlarmDetails {
	groups := make([]string, 0, len(a.GroupIDs))
	for _, gid := range a.GroupIDs {
		if name := s.GroupName(gid); name != "" {
			groups = append(groups, name)
			continue
		}
		// Group ids of a shared alarm may belong to a foreign unit; resolve
		// them via the alarm's cross-unit metadata.
		if cug, ok := a.CrossUnitMeta.Groups[strconv.Itoa(gid)]; ok {
			cluster := a.CrossUnitMeta.Clusters[strconv.Itoa(cug.ClusterID)]
			groups = append(groups, fmt.Sprintf("%s (%s)", cug.Name, cluster.Name))
		}
	}

	return AlarmDetails{
		ID:            a.ID,
		ForeignID:     a.ForeignID,
		Title:         a.Title,
		Text:          a.Text,
		Date:          time.Unix(a.DateUnix, 0),
		Address:       a.Address,
		Latitude:      strconv.FormatFloat(a.Lat, 'f', -1, 64),
		Longitude:     strconv.FormatFloat(a.Lng, 'f', -1, 64),
		Groups:        groups,
		Priority:      a.Priority,
		Closed:        a.Closed,
		New:           a.New,
		SelfAddressed: a.SelfAddressed,
		Answered:      s.answeredState(a),
	}
}

// answeredState resolves which status the active UCR answered the alarm
// with, or "not answered".
func (s *Snapshot) answeredState(a Alarm) string {
	ucr := strconv.Itoa(s.UCRActive)
	// Deterministic iteration; a UCR appears under at most one status.
	stateIDs := make([]string, 0, len(a.Answered))
	for id := range a.Answered {
		stateIDs = append(stateIDs, id)
	}
	sort.Strings(stateIDs)
	for _, stateID := range stateIDs {
		if _, ok := a.Answered[stateID][ucr]; ok {
			if id, err := strconv.Atoi(stateID); err == nil {
				return s.StatusNameByID(id)
			}
		}
	}
	return "not answered"
}

// NewsDetails is the derived view of a single news item.
type NewsDetails struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	Text          string    `json:"text"`
	Date          time.Time `json:"date"`
	Address       string    `json:"address"`
	Latitude      string    `json:"latitude"`
	Longitude     string    `json:"longitude"`
	Groups        []string  `json:"groups"`
	New           bool      `json:"new"`
	SelfAddressed bool      `json:"self_addressed"`
}

// LastNewsTitle returns the newest news item's title, or "unknown".
func (s *Snapshot) LastNewsTitle() string {
	if len(s.News.Sorting) == 0 {
		return StateUnknown
	}
	n, ok := s.News.Items[strconv.Itoa(s.News.Sorting[0])]
	if !ok {
		return StateUnknown
	}
	return n.Title
}

// LastNewsDetails returns the derived view of the newest news item, or nil.
func (s *Snapshot) LastNewsDetails() *NewsDetails {
	if len(s.News.Sorting) == 0 {
		return nil
	}
	n, ok := s.News.Items[strconv.Itoa(s.News.Sorting[0])]
	if !ok {
		return nil
	}

	groups := make([]string, 0, len(n.GroupIDs))
	for _, gid := range n.GroupIDs {
		if name := s.GroupName(gid); name != "" {
			groups = append(groups, name)
		}
	}

	return &NewsDetails{
		ID:            n.ID,
		Title:         n.Title,
		Text:          n.Text,
		Date:          time.Unix(n.DateUnix, 0),
		Address:       n.Address,
		Latitude:      strconv.FormatFloat(n.Lat, 'f', -1, 64),
		Longitude:     strconv.FormatFloat(n.Lng, 'f', -1, 64),
		Groups:        groups,
		New:           n.New,
		SelfAddressed: n.SelfAddressed,
	}
}

// CalendarEvent is an appointment mapped to calendar semantics.
type CalendarEvent struct {
	UID         int       `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// LastEvent returns the newest appointment, or nil when there are none.
func (s *Snapshot) LastEvent() *CalendarEvent {
	if len(s.Events.Sorting) == 0 {
		return nil
	}
	e, ok := s.Events.Items[strconv.Itoa(s.Events.Sorting[0])]
	if !ok {
		return nil
	}
	ce := eventToCalendar(e)
	return &ce
}

// EventsBetween returns all appointments fully inside [start, end], in
// sorting order.
func (s *Snapshot) EventsBetween(start, end time.Time) []CalendarEvent {
	out := []CalendarEvent{}
	for _, id := range s.Events.Sorting {
		e, ok := s.Events.Items[strconv.Itoa(id)]
		if !ok {
			continue
		}
		ce := eventToCalendar(e)
		if !ce.Start.Before(start) && !ce.End.After(end) {
			out = append(out, ce)
		}
	}
	return out
}

func eventToCalendar(e Event) CalendarEvent {
	return CalendarEvent{
		UID:         e.ID,
		Summary:     e.Title,
		Description: e.Text,
		Location:    e.Address,
		Start:       time.Unix(e.StartUnix, 0),
		End:         time.Unix(e.EndUnix, 0),
	}
}

// VehicleDetails is the derived view of a vehicle's FMS state.
type VehicleDetails struct {
	ID            string    `json:"id"`
	FullName      string    `json:"fullname"`
	ShortName     string    `json:"shortname"`
	Name          string    `json:"name"`
	FMSStatus     string    `json:"fms_status"`
	FMSStatusNote string    `json:"fms_status_note"`
	FMSStatusAt   time.Time `json:"fms_status_at"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	OPTA          string    `json:"opta"`
	ISSI          string    `json:"issi"`
	Number        string    `json:"number"`
}

// VehicleIDs returns the ids of all vehicles of the unit, sorted.
func (s *Snapshot) VehicleIDs() []string {
	ids := make([]string, 0, len(s.Cluster.Vehicles))
	for id := range s.Cluster.Vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// VehicleStatus returns the FMS status of a vehicle, or "unknown" when the
// vehicle has no status set.
func (s *Snapshot) VehicleStatus(id string) (string, error) {
	v, ok := s.Cluster.Vehicles[id]
	if !ok {
		return "", fmt.Errorf("divera: vehicle %q not found", id)
	}
	if v.FMSStatusID == nil {
		return StateUnknown, nil
	}
	return strconv.Itoa(*v.FMSStatusID), nil
}

// VehicleDetails returns the derived view of a vehicle.
func (s *Snapshot) VehicleDetails(id string) (*VehicleDetails, error) {
	v, ok := s.Cluster.Vehicles[id]
	if !ok {
		return nil, fmt.Errorf("divera: vehicle %q not found", id)
	}
	status := StateUnknown
	if v.FMSStatusID != nil {
		status = strconv.Itoa(*v.FMSStatusID)
	}
	return &VehicleDetails{
		ID:            id,
		FullName:      v.FullName,
		ShortName:     v.ShortName,
		Name:          v.Name,
		FMSStatus:     status,
		FMSStatusNote: v.FMSStatusNote,
		FMSStatusAt:   time.Unix(v.FMSStatusTS, 0),
		Latitude:      v.Lat,
		Longitude:     v.Lng,
		OPTA:          v.OPTA,
		ISSI:          v.ISSI,
		Number:        v.Number,
	}, nil
}

// UCRIDs returns all user-cluster relation ids of the account, sorted.
func (s *Snapshot) UCRIDs() []int {
	ids := make([]int, 0, len(s.UCR))
	for k := range s.UCR {
		if id, err := strconv.Atoi(k); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// UCRCount returns the number of units the account belongs to.
func (s *Snapshot) UCRCount() int {
	return len(s.UCR)
}

// UCRName returns the unit name of a user-cluster relation.
func (s *Snapshot) UCRName(id int) string {
	return s.UCR[strconv.Itoa(id)].Name
}

// UCRNames maps a list of UCR ids to their unit names.
func (s *Snapshot) UCRNames(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, s.UCRName(id))
	}
	return names
}

// UCRIDsByName returns the ids of all UCRs whose unit name is in names.
func (s *Snapshot) UCRIDsByName(names []string) []int {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	out := []int{}
	for _, id := range s.UCRIDs() {
		if wanted[s.UCRName(id)] {
			out = append(out, id)
		}
	}
	return out
}

// ClusterID returns the cluster id behind a user-cluster relation.
func (s *Snapshot) ClusterID(ucrID int) int {
	return s.UCR[strconv.Itoa(ucrID)].ClusterID
}

// UsergroupSupported reports whether the account's default UCR belongs to a
// regular usergroup. Monitor and admin accounts are not supported.
func (s *Snapshot) UsergroupSupported() bool {
	info, ok := s.UCR[strconv.Itoa(s.UCRDefault)]
	if !ok {
		return false
	}
	return supportedUsergroups[info.UsergroupID]
}
