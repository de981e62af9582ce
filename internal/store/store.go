package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/N1c093/diverad/internal/divera"
)

const schema = `
CREATE TABLE IF NOT EXISTS alarms (
	id           INTEGER NOT NULL,
	ucr_id       INTEGER NOT NULL,
	foreign_id   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL,
	text         TEXT NOT NULL,
	address      TEXT NOT NULL,
	latitude     TEXT NOT NULL,
	longitude    TEXT NOT NULL,
	groups       TEXT NOT NULL,
	priority     INTEGER NOT NULL,
	closed       INTEGER NOT NULL,
	date         INTEGER NOT NULL,
	inserted_at  INTEGER NOT NULL,
	PRIMARY KEY (ucr_id, id)
);
CREATE INDEX IF NOT EXISTS idx_alarms_date ON alarms (ucr_id, date DESC);

CREATE TABLE IF NOT EXISTS news (
	id           INTEGER NOT NULL,
	ucr_id       INTEGER NOT NULL,
	title        TEXT NOT NULL,
	text         TEXT NOT NULL,
	address      TEXT NOT NULL,
	date         INTEGER NOT NULL,
	inserted_at  INTEGER NOT NULL,
	PRIMARY KEY (ucr_id, id)
);

CREATE TABLE IF NOT EXISTS status_log (
	ucr_id       INTEGER NOT NULL,
	status_id    INTEGER NOT NULL,
	status_name  TEXT NOT NULL,
	set_at       INTEGER NOT NULL,
	PRIMARY KEY (ucr_id, set_at, status_id)
);
`

// Archive persists alarm, news and status history across restarts.
type Archive struct {
	db   *sql.DB
	path string
}

// Open creates or opens the archive database and applies the schema.
func Open(path string, cfg SQLiteConfig) (*Archive, error) {
	db, err := openDB(path, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Archive{db: db, path: path}, nil
}

// Close releases the underlying pool.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.path
}

// Verify runs the integrity pragma against the archive file. Returns
// problem descriptions, or nil when the database is healthy.
func (a *Archive) Verify(_ context.Context) ([]string, error) {
	return VerifyIntegrity(a.path)
}

// Ping verifies connectivity, for health checks.

func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// UpsertAlarm records an alarm. Re-inserting an id updates the mutable
// fields (closed, text) so poll repetition stays idempotent.
func (a *Archive) UpsertAlarm(ctx context.Context, ucrID int, d divera.AlarmDetails) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO alarms (id, ucr_id, foreign_id, title, text, address, latitude, longitude, groups, priority, closed, date, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ucr_id, id) DO UPDATE SET
			text = excluded.text,
			closed = excluded.closed`,
		d.ID, ucrID, d.ForeignID, d.Title, d.Text, d.Address, d.Latitude, d.Longitude,
		strings.Join(d.Groups, ","), boolInt(d.Priority), boolInt(d.Closed),
		d.Date.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: upsert alarm %d: %w", d.ID, err)
	}
	return nil
}

// UpsertNews records a news item.
func (a *Archive) UpsertNews(ctx context.Context, ucrID int, d divera.NewsDetails) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO news (id, ucr_id, title, text, address, date, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ucr_id, id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text`,
		d.ID, ucrID, d.Title, d.Text, d.Address, d.Date.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: upsert news %d: %w", d.ID, err)
	}
	return nil
}

// AppendStatus records a user status change.
func (a *Archive) AppendStatus(ctx context.Context, ucrID int, d divera.UserStatusDetails) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO status_log (ucr_id, status_id, status_name, set_at)
		VALUES (?, ?, ?, ?)`,
		ucrID, d.ID, d.Name, d.SetAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: append status: %w", err)
	}
	return nil
}

// ArchivedAlarm is one row of the alarm history.
type ArchivedAlarm struct {
	ID        int       `json:"id"`
	ForeignID string    `json:"foreign_id,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Address   string    `json:"address"`
	Latitude  string    `json:"latitude"`
	Longitude string    `json:"longitude"`
	Groups    []string  `json:"groups"`
	Priority  bool      `json:"priority"`
	Closed    bool      `json:"closed"`
	Date      time.Time `json:"date"`
}

// RecentAlarms returns up to limit alarms for a unit, newest first.
func (a *Archive) RecentAlarms(ctx context.Context, ucrID, limit int) ([]ArchivedAlarm, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, foreign_id, title, text, address, latitude, longitude, groups, priority, closed, date
		FROM alarms WHERE ucr_id = ? ORDER BY date DESC LIMIT ?`,
		ucrID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query alarms: %w", err)
	}
	defer rows.Close()

	out := []ArchivedAlarm{}
	for rows.Next() {
		var r ArchivedAlarm
		var groups string
		var priority, closed int
		var date int64
		if err := rows.Scan(&r.ID, &r.ForeignID, &r.Title, &r.Text, &r.Address,
			&r.Latitude, &r.Longitude, &groups, &priority, &closed, &date); err != nil {
			return nil, fmt.Errorf("store: scan alarm row: %w", err)
		}
		if groups != "" {
			r.Groups = strings.Split(groups, ",")
		} else {
			r.Groups = []string{}
		}
		r.Priority = priority != 0
		r.Closed = closed != 0
		r.Date = time.Unix(date, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusLogEntry is one row of the availability history.
type StatusLogEntry struct {
	StatusID   int       `json:"status_id"`
	StatusName string    `json:"status_name"`
	SetAt      time.Time `json:"set_at"`
}

// StatusHistory returns up to limit status changes for a unit, newest first.
func (a *Archive) StatusHistory(ctx context.Context, ucrID, limit int) ([]StatusLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT status_id, status_name, set_at
		FROM status_log WHERE ucr_id = ? ORDER BY set_at DESC LIMIT ?`,
		ucrID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query status log: %w", err)
	}
	defer rows.Close()

	out := []StatusLogEntry{}
	for rows.Next() {
		var e StatusLogEntry
		var setAt int64
		if err := rows.Scan(&e.StatusID, &e.StatusName, &setAt); err != nil {
			return nil, fmt.Errorf("store: scan status row: %w", err)
		}
		e.SetAt = time.Unix(setAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
