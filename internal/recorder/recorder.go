package recorder

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Recorder captures usage events for export and later inspection.
// Thread-safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []UsageEvent
	writer  io.Writer // optional: stream records as they arrive
}

// New creates a new Recorder. If w is non-nil, events are also
// written to w as newline-delimited JSON as they arrive.
func New(w io.Writer) *Recorder {
	return &Recorder{
		writer: w,
	}
}

// Record captures a single event.
func (r *Recorder) Record(rec UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)

	if r.writer != nil {
		if err := json.NewEncoder(r.writer).Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records returns a copy of all recorded events.
func (r *Recorder) Records() []UsageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]UsageEvent, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ExportJSON writes all events to w as a JSON array.
func (r *Recorder) ExportJSON(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.records
	if records == nil {
		records = []UsageEvent{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// ExportFile writes all events to a file as a JSON array.
func (r *Recorder) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.ExportJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadJSON reads usage events from a JSON array.
func LoadJSON(r io.Reader) ([]UsageEvent, error) {
	var records []UsageEvent
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// LoadFile reads events from a file written by ExportFile.
func LoadFile(path string) ([]UsageEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadJSON(f)
}
