package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/CZERTAINLY/apimon/internal/diag"
)

var ErrMalformed = errors.New("malformed report")

var headerRx = regexp.MustCompile(`^===== (\d+)\. (.*) =====$`)

// Read parses a report written by diag.Report.Render. Section texts come
// back byte for byte unless a text itself contains the header line of the
// following section.
func Read(r io.Reader) (diag.Report, error) {
	var rep diag.Report
	b, err := io.ReadAll(r)
	if err != nil {
		return rep, err
	}
	s := string(b)

	for _, want := range []string{diag.ReportTitle, diag.ReportSeparator} {
		line, rest, _ := strings.Cut(s, "\n")
		if line != want {
			return rep, fmt.Errorf("%w: expected %q, got %q", ErrMalformed, want, line)
		}
		s = rest
	}

	line, s, _ := strings.Cut(s, "\n")
	value, ok := strings.CutPrefix(line, diag.GeneratedPrefix)
	if !ok {
		return rep, fmt.Errorf("%w: missing generation time", ErrMalformed)
	}
	rep.GeneratedAt, err = time.Parse(diag.TimeLayout, value)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	line, s, _ = strings.Cut(s, "\n")
	rep.Host, ok = strings.CutPrefix(line, diag.HostPrefix)
	if !ok {
		return rep, fmt.Errorf("%w: missing target host", ErrMalformed)
	}
	s, ok = strings.CutPrefix(s, "\n")
	if !ok {
		return rep, fmt.Errorf("%w: missing empty line after header", ErrMalformed)
	}

	for idx := 0; s != ""; idx++ {
		s, ok = strings.CutPrefix(s, "\n")
		if !ok {
			return rep, fmt.Errorf("%w: section %d: missing empty line", ErrMalformed, idx+1)
		}
		line, s, _ = strings.Cut(s, "\n")
		m := headerRx.FindStringSubmatch(line)
		if m == nil || m[1] != strconv.Itoa(idx+1) {
			return rep, fmt.Errorf("%w: section %d: unexpected header %q", ErrMalformed, idx+1, line)
		}
		s, ok = strings.CutPrefix(s, "\n")
		if !ok {
			return rep, fmt.Errorf("%w: section %d: missing empty line", ErrMalformed, idx+1)
		}

		end := nextSection(s, idx+1)
		text, ok := strings.CutSuffix(s[:end], "\n")
		if !ok {
			return rep, fmt.Errorf("%w: section %d: unterminated text", ErrMalformed, idx+1)
		}
		rep.Sections = append(rep.Sections, diag.Section{Title: m[2], Text: text})
		s = s[end:]
	}
	return rep, nil
}

// nextSection returns the offset of the blank line preceding the header of
// section idx (0 based) in s, or len(s).
func nextSection(s string, idx int) int {
	prefix := fmt.Sprintf("\n\n===== %d. ", idx+1)
	for off := 0; ; {
		i := strings.Index(s[off:], prefix)
		if i < 0 {
			return len(s)
		}
		at := off + i
		line, _, _ := strings.Cut(s[at+2:], "\n")
		if headerRx.MatchString(line) {
			return at + 1
		}
		off = at + 1
	}
}

// ReadFile reads the report stored at path.
func ReadFile(path string) (diag.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return diag.Report{}, err
	}
	defer f.Close()
	rep, err := Read(f)
	if err != nil {
		return rep, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}

// Entry describes one stored report file.
type Entry struct {
	Name    string
	Path    string
	Machine string
	Time    time.Time
	Size    int64
}

var nameRx = regexp.MustCompile(`^(.+)_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})(?:_\d+)?\.txt$`)

// List returns the reports stored in dir ordered by their time. Files not
// named like a report are skipped. A missing dir has no reports.
func List(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ret []Entry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		m := nameRx.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		t, err := time.ParseInLocation(TimeLayout, m[2], time.Local)
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, err
		}
		ret = append(ret, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(dir, de.Name()),
			Machine: m[1],
			Time:    t,
			Size:    info.Size(),
		})
	}
	slices.SortFunc(ret, func(a, b Entry) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return ret, nil
}
