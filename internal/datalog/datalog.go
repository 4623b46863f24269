// Package datalog appends control loop readings to a CSV file for
// offline firing analysis.
package datalog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
)

var header = []string{
	"timestamp", "temperature_c", "setpoint_c", "power_pct",
	"state", "kp", "ki", "kd",
}

// Logger writes one CSV row per loop tick. It implements
// control.Notifier; write failures are logged and do not propagate to
// the loop.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// Open appends to the CSV file at path, creating it with a header row
// if it does not exist.
func Open(path string) (*Logger, error) {
	info, err := os.Stat(path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open datalog: %w", err)
	}

	l := &Logger{file: f, writer: csv.NewWriter(f)}
	if fresh {
		if err := l.writer.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write datalog header: %w", err)
		}
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write datalog header: %w", err)
		}
	}
	return l, nil
}

// Reading appends one row for the tick.
func (l *Logger) Reading(r control.Reading) {
	row := []string{
		r.Sample.Time.UTC().Format(time.RFC3339),
		strconv.FormatFloat(r.Sample.Celsius, 'f', 2, 64),
		strconv.FormatFloat(r.Setpoint, 'f', 1, 64),
		strconv.FormatFloat(float64(r.Power), 'f', 1, 64),
		string(r.State),
		strconv.FormatFloat(r.Params.Kp, 'g', -1, 64),
		strconv.FormatFloat(r.Params.Ki, 'g', -1, 64),
		strconv.FormatFloat(r.Params.Kd, 'g', -1, 64),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return
	}
	l.writer.Write(row)
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		log.Printf("datalog: write row: %v", err)
	}
}

// Lifecycle is a no-op; state transitions are visible in the state
// column of the surrounding rows.
func (l *Logger) Lifecycle(state control.LoopState, reason string) {}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return nil
	}
	l.writer.Flush()
	werr := l.writer.Error()
	cerr := l.file.Close()
	l.writer = nil
	if werr != nil {
		return werr
	}
	return cerr
}
