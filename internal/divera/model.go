package divera

// Wire types for the /api/v2/pull/all payload. Collections come as an object
// of items keyed by stringified id plus a "sorting" list of ids, newest first.
// Only the fields the daemon consumes are modeled.

type pullResponse struct {
	Data Snapshot `json:"data"`
}

// Snapshot is one decoded pull of the full account state for a UCR.
type Snapshot struct {
	User       User               `json:"user"`
	Status     UserStatus         `json:"status"`
	Cluster    Cluster            `json:"cluster"`
	Alarms     AlarmList          `json:"alarm"`
	News       NewsList           `json:"news"`
	Events     EventList          `json:"events"`
	UCR        map[string]UCRInfo `json:"ucr"`
	UCRActive  int                `json:"ucr_active"`
	UCRDefault int                `json:"ucr_default"`
}

type User struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	AccessKey string `json:"accesskey"`
}

// UserStatus is the user's current availability as reported upstream.
type UserStatus struct {
	StatusID  int   `json:"status_id"`
	SetAtUnix int64 `json:"status_set_date"`
}

type Cluster struct {
	Name          string             `json:"name"`
	VersionID     int                `json:"version_id"`
	Status        map[string]Status  `json:"status"`
	StatusSorting []int              `json:"statussorting"`
	Groups        map[string]Group   `json:"group"`
	Vehicles      map[string]Vehicle `json:"vehicle"`
}

type Status struct {
	Name string `json:"name"`
}

type Group struct {
	Name string `json:"name"`
}

type Vehicle struct {
	FullName      string  `json:"fullname"`
	ShortName     string  `json:"shortname"`
	Name          string  `json:"name"`
	FMSStatusID   *int    `json:"fmsstatus_id"`
	FMSStatusNote string  `json:"fmsstatus_note"`
	FMSStatusTS   int64   `json:"fmsstatus_ts"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	OPTA          string  `json:"opta"`
	ISSI          string  `json:"issi"`
	Number        string  `json:"number"`
}

type AlarmList struct {
	Items   map[string]Alarm `json:"items"`
	Sorting []int            `json:"sorting"`
}

type Alarm struct {
	ID            int     `json:"id"`
	ForeignID     string  `json:"foreign_id"`
	Title         string  `json:"title"`
	Text          string  `json:"text"`
	DateUnix      int64   `json:"date"`
	Address       string  `json:"address"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	GroupIDs      []int   `json:"group"`
	Priority      bool    `json:"priority"`
	Closed        bool    `json:"closed"`
	New           bool    `json:"new"`
	SelfAddressed bool    `json:"ucr_self_addressed"`
	// ucr_answered maps status id -> set of UCR ids that answered with it.
	Answered      map[string]map[string]any `json:"ucr_answered"`
	CrossUnitMeta CrossUnitMeta             `json:"cross_unit_meta"`
}

// CrossUnitMeta resolves group ids that belong to a foreign unit when an
// alarm is shared across clusters.
type CrossUnitMeta struct {
	Groups   map[string]CrossUnitGroup `json:"groups"`
	Clusters map[string]Group          `json:"clusters"`
}

type CrossUnitGroup struct {
	Name      string `json:"name"`
	ClusterID int    `json:"cluster_id"`
}

type NewsList struct {
	Items   map[string]News `json:"items"`
	Sorting []int           `json:"sorting"`
}

type News struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Text          string  `json:"text"`
	DateUnix      int64   `json:"date"`
	Address       string  `json:"address"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	GroupIDs      []int   `json:"group"`
	New           bool    `json:"new"`
	SelfAddressed bool    `json:"ucr_self_addressed"`
}

type EventList struct {
	Items   map[string]Event `json:"items"`
	Sorting []int            `json:"sorting"`
}

type Event struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Address   string `json:"address"`
	StartUnix int64  `json:"start"`
	EndUnix   int64  `json:"end"`
}

type UCRInfo struct {
	Name        string `json:"name"`
	ClusterID   int    `json:"cluster_id"`
	UsergroupID int    `json:"usergroup_id"`
}
