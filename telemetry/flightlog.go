package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
)

// FlightRecord is one applied deposit.
type FlightRecord struct {
	Timestamp float64 `csv:"timestamp"` // Unix seconds
	DroneID   string  `csv:"drone_id"`
	X         int     `csv:"x"`
	Y         int     `csv:"y"`
	Intensity float64 `csv:"intensity"`
	RSSI      int     `csv:"rssi"`
}

// Time converts the timestamp.
func (r FlightRecord) Time() time.Time {
	sec := int64(r.Timestamp)
	return time.Unix(sec, int64((r.Timestamp-float64(sec))*1e9))
}

// FlightLogger appends deposits to a session CSV. A nil *FlightLogger is
// a no-op.
type FlightLogger struct {
	file          *os.File
	headerWritten bool
}

// NewFlightLogger creates dir and opens session_YYYY-MM-DD_HHMMSS.csv in it.
// Returns nil if dir is empty (logging disabled).
func NewFlightLogger(dir string, now time.Time) (*FlightLogger, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create flight log dir: %w", err)
	}
	path := filepath.Join(dir, "session_"+now.Format(archiveLayout)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create flight log: %w", err)
	}
	return &FlightLogger{file: f}, nil
}

// Path returns the log file path.
func (l *FlightLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.file.Name()
}

// Log appends one record.
func (l *FlightLogger) Log(rec FlightRecord) error {
	if l == nil {
		return nil
	}
	records := []FlightRecord{rec}
	if !l.headerWritten {
		if err := gocsv.Marshal(records, l.file); err != nil {
			return fmt.Errorf("writing flight log: %w", err)
		}
		l.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, l.file); err != nil {
		return fmt.Errorf("writing flight log: %w", err)
	}
	return nil
}

// Close closes the log file.
func (l *FlightLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// ReadFlightLog loads every record of a flight log.
func ReadFlightLog(path string) ([]FlightRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flight log: %w", err)
	}
	defer f.Close()

	var records []FlightRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parse flight log: %w", err)
	}
	return records, nil
}
