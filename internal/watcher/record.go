package watcher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

// Record is the on-disk watcher record at
// <project>/.clawbox/state/watchers/<vm>.json.
type Record struct {
	VMName      string    `json:"vm_name"`
	Pid         int       `json:"pid"`
	PollSeconds int       `json:"poll_seconds"`
	StartedAt   time.Time `json:"started_at"`
}

func recordPath(watchersDir, vm string) string {
	return filepath.Join(watchersDir, vm+".json")
}

// writeRecord writes a Record atomically (temp file + rename).
func writeRecord(watchersDir string, rec Record) error {
	if err := os.MkdirAll(watchersDir, 0755); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not create %s", watchersDir)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not encode watcher record for %s", rec.VMName)
	}

	path := recordPath(watchersDir, rec.VMName)
	tmp, err := os.CreateTemp(watchersDir, ".watcher-*.tmp")
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not write watcher record for %s", rec.VMName)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return clawerr.Wrap(clawerr.Precondition, err, "could not write watcher record for %s", rec.VMName)
	}
	if err := tmp.Close(); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not write watcher record for %s", rec.VMName)
	}
	return os.Rename(tmpPath, path)
}

// ReadRecord reads the Record for vm. Returns (nil, nil) if absent. Exported
// for the status reporter, which only ever reads watcher state.
func ReadRecord(watchersDir, vm string) (*Record, error) {
	return readRecord(watchersDir, vm)
}

// readRecord reads the Record for vm. Returns (nil, nil) if absent.
func readRecord(watchersDir, vm string) (*Record, error) {
	data, err := os.ReadFile(recordPath(watchersDir, vm))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not read watcher record for %s", vm)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not parse watcher record for %s", vm)
	}
	return &rec, nil
}

// removeRecord deletes the Record for vm; a missing record is not an error.
func removeRecord(watchersDir, vm string) error {
	if err := os.Remove(recordPath(watchersDir, vm)); err != nil && !os.IsNotExist(err) {
		return clawerr.Wrap(clawerr.Precondition, err, "could not remove watcher record for %s", vm)
	}
	return nil
}

// listRecords returns every watcher record currently on disk.
func listRecords(watchersDir string) ([]Record, error) {
	entries, err := os.ReadDir(watchersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, clawerr.Wrap(clawerr.Precondition, err, "could not list %s", watchersDir)
	}

	var out []Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		vm := e.Name()[:len(e.Name())-len(".json")]
		rec, err := readRecord(watchersDir, vm)
		if err != nil || rec == nil {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}
