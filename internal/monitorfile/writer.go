// Package monitorfile exports the latest alarm state of each unit as a JSON
// file for local alarm-monitor displays.
package monitorfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/N1c093/diverad/internal/divera"
	"github.com/google/renameio/v2"
)

// Export is the on-disk document, one per unit.
type Export struct {
	UCR       int                  `json:"ucr"`
	Unit      string               `json:"unit"`
	UpdatedAt time.Time            `json:"updated_at"`
	OpenAlarm bool                 `json:"open_alarm"`
	LastAlarm *divera.AlarmDetails `json:"last_alarm,omitempty"`
	LastNews  *divera.NewsDetails  `json:"last_news,omitempty"`
}

// Writer writes monitor exports atomically below a data directory.
type Writer struct {
	dir string
	now func() time.Time
}

// New creates a Writer. The directory is created on first write.
func New(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write renders the export for one unit and swaps it into place atomically,
// so a monitor reading the file never observes a partial document.
func (w *Writer) Write(ucrID int, snap *divera.Snapshot) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("monitorfile: create dir: %w", err)
	}

	export := Export{
		UCR:       ucrID,
		Unit:      snap.UCRName(ucrID),
		UpdatedAt: w.now(),
		OpenAlarm: snap.HasOpenAlarms(),
		LastAlarm: snap.LastAlarmDetails(),
		LastNews:  snap.LastNewsDetails(),
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("monitorfile: encode: %w", err)
	}

	path := w.Path(ucrID)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("monitorfile: write %s: %w", path, err)
	}
	return nil
}

// Path returns the export path for a unit.
func (w *Writer) Path(ucrID int) string {
	return filepath.Join(w.dir, fmt.Sprintf("monitor-%d.json", ucrID))
}
