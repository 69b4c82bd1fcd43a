// Package report stores diagnostic reports as plain text files, one file per
// run, and reads them back.
package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CZERTAINLY/apimon/internal/diag"
)

// TimeLayout is the timestamp part of a report file name.
const TimeLayout = "2006-01-02_15-04-05"

// maxSuffix bounds the _N suffixes tried when a name is already taken.
const maxSuffix = 100

var (
	ErrCreateDir = errors.New("creating log folder")
	ErrExists    = errors.New("report file already exists")
)

// DirError is returned when the log folder can't be created or opened.
// It matches ErrCreateDir.
type DirError struct {
	Dir string
	Err error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("creating log folder %q: %v", e.Dir, e.Err)
}

func (e *DirError) Unwrap() error {
	return e.Err
}

func (e *DirError) Is(target error) bool {
	return target == ErrCreateDir
}

// FileName returns {machine}_{YYYY-MM-DD_HH-MM-SS}.txt for a report
// generated at t on machine.
func FileName(machine string, t time.Time) string {
	return machine + "_" + t.Format(TimeLayout) + ".txt"
}

// Writer persists reports. The zero value uses os.Hostname.
type Writer struct {
	Hostname func() (string, error)
}

func NewWriter() *Writer {
	return &Writer{Hostname: os.Hostname}
}

func (w *Writer) machine() string {
	hostname := os.Hostname
	if w != nil && w.Hostname != nil {
		hostname = w.Hostname
	}
	name, err := hostname()
	if err != nil || strings.TrimSpace(name) == "" {
		return "unknown"
	}
	return strings.TrimSpace(name)
}

// Prepare creates dir with its parents when missing.
func (w *Writer) Prepare(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &DirError{Dir: dir, Err: err}
	}
	return nil
}

// Write creates dir when missing and stores rep in a new file in it. The
// file is named after the machine and rep.GeneratedAt; an existing file is
// never overwritten, a _2, _3, ... suffix is added instead. It returns the
// path of the written file.
func (w *Writer) Write(ctx context.Context, rep diag.Report, dir string) (string, error) {
	if err := w.Prepare(dir); err != nil {
		return "", err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", &DirError{Dir: dir, Err: err}
	}
	defer root.Close()

	base := FileName(w.machine(), rep.GeneratedAt)
	f, name, err := create(root, base)
	if err != nil {
		return "", err
	}

	bw := bufio.NewWriter(f)
	err = rep.Render(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = root.Remove(name)
		return "", fmt.Errorf("saving report %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	slog.DebugContext(ctx, "report saved", "path", path)
	return path, nil
}

func create(root *os.Root, base string) (*os.File, string, error) {
	stem := strings.TrimSuffix(base, ".txt")
	name := base
	for i := 2; ; i++ {
		f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		switch {
		case err == nil:
			return f, name, nil
		case !errors.Is(err, fs.ErrExist):
			return nil, "", fmt.Errorf("creating report %s: %w", name, err)
		case i > maxSuffix:
			return nil, "", fmt.Errorf("%w: %s", ErrExists, base)
		}
		name = stem + "_" + strconv.Itoa(i) + ".txt"
	}
}
