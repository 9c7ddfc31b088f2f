package recorder

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/sample"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// Header is the first line of every recording.
const Header = "timestamp, load(Ohm), load voltage(V), load current(mA)"

// TimeFormat is the layout of the timestamp column.
const TimeFormat = "2006-01-02 15:04:05.000000"

// Recorder writes the latest sample to a CSV file at a fixed interval.
type Recorder struct {
	path          string
	writeInterval time.Duration
	notifyEvery   int

	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	closed  bool
	rows    int
	pending int // Writes since the last job complete notice

	onComplete []func()
}

// Path returns the CSV file name for an output setting. An empty output
// yields a unique generated name; a missing .csv extension is appended.
func Path(output string) string {
	if output == "" {
		output = "gocharge_" + xid.New().String()
	}
	if !strings.EqualFold(filepath.Ext(output), ".csv") {
		output += ".csv"
	}
	return output
}

// New creates the CSV file, truncating an existing one, and writes the header.
// The file is flushed and closed on atexit as well as by Close.
func New(cfg *config.Config) (*Recorder, error) {
	path := Path(cfg.Recorder.Output)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}

	r := &Recorder{
		path:          path,
		writeInterval: cfg.Recorder.WriteInterval,
		notifyEvery:   cfg.Recorder.NotifyEvery,
		file:          file,
		w:             bufio.NewWriter(file),
	}
	if r.writeInterval <= 0 {
		r.writeInterval = time.Second
	}

	if _, err := fmt.Fprintln(r.w, Header); err != nil {
		file.Close()
		return nil, fmt.Errorf("recorder: %w", err)
	}
	if err := r.w.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("recorder: %w", err)
	}

	atexit.Register(func() {
		if err := r.Close(); err != nil {
			log.Printf("recorder: %v", err)
		}
	})

	return r, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Rows returns the number of data rows written.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// OnJobComplete registers a callback invoked every NotifyEvery writes while
// the job is ended.
func (r *Recorder) OnJobComplete(cb func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = append(r.onComplete, cb)
}

// Record consumes samples and writes the most recent one every WriteInterval.
// It returns when the input closes or ctx is cancelled, writing the last
// unrecorded sample and closing the file.
func (r *Recorder) Record(ctx context.Context, in <-chan sample.Sample) (err error) {
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	ticker := time.NewTicker(r.writeInterval)
	defer ticker.Stop()

	var (
		latest sample.Sample
		dirty  bool
	)
	for {
		select {
		case s, ok := <-in:
			if !ok {
				if dirty {
					return r.Write(latest)
				}
				return nil
			}
			latest = s
			dirty = true

		case <-ticker.C:
			if !dirty {
				continue
			}
			if err := r.Write(latest); err != nil {
				return err
			}
			dirty = false

		case <-ctx.Done():
			if dirty {
				return r.Write(latest)
			}
			return nil
		}
	}
}

// Write appends one row for s and flushes it to disk.
func (r *Recorder) Write(s sample.Sample) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("recorder: %s is closed", r.path)
	}

	_, err := fmt.Fprintf(r.w, "%s, %s, %s, %s\n",
		s.Timestamp.Format(TimeFormat),
		formatFloat(s.Resistance),
		formatFloat(s.Voltage),
		formatFloat(s.Current),
	)
	if err == nil {
		err = r.w.Flush()
	}
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("recorder: %w", err)
	}
	r.rows++

	var (
		complete bool
		notify   []func()
	)
	if s.Ended {
		r.pending++
		if r.notifyEvery > 0 && r.pending >= r.notifyEvery {
			r.pending = 0
			complete = true
			notify = append(notify, r.onComplete...)
		}
	} else {
		r.pending = 0
	}
	r.mu.Unlock()

	if complete {
		log.Printf("recorder: job complete")
		for _, cb := range notify {
			cb()
		}
	}
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	ferr := r.w.Flush()
	cerr := r.file.Close()
	if ferr != nil {
		return fmt.Errorf("recorder: %w", ferr)
	}
	if cerr != nil {
		return fmt.Errorf("recorder: %w", cerr)
	}
	return nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.6g", v)
}
