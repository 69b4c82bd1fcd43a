package model

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// Codes of CueErrorDetail.
const (
	CodeUnknownField       = "unknown_field"
	CodeMissingRequired    = "missing_required"
	CodeEmptyValue         = "empty_value"
	CodeUnsupportedVersion = "unsupported_version"
	CodeInvalidTime        = "invalid_time"
	CodeInvalidInterval    = "invalid_interval"
	CodeInvalidCron        = "invalid_cron"
	CodeInvalidTimezone    = "invalid_timezone"
	CodeMissingSchedule    = "missing_schedule"
	CodeAmbiguousSchedule  = "ambiguous_schedule"
	CodeInvalidDuration    = "invalid_duration"
	CodeInvalidPoll        = "invalid_poll_interval"
	CodeInvalidEnum        = "invalid_enum"
	CodeOutOfRange         = "out_of_range"
	CodeInvalidValue       = "invalid_value"
)

// CueErrorDetail is one configuration problem an operator can act on.
type CueErrorDetail struct {
	Path    string // schedule.times[0]
	Code    string
	Message string
	Pos     CueErrorPosition // zero for semantic errors
	Raw     string
}

func (c CueErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

func (c CueErrorDetail) String() string {
	if c.Pos.Filename != "" {
		return fmt.Sprintf("%s:%d:%d: %s (%s)", c.Pos.Filename, c.Pos.Line, c.Pos.Column, c.Message, c.Path)
	}
	if c.Path != "" {
		return c.Path + ": " + c.Message
	}
	return c.Message
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

var (
	reIncomplete = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed = regexp.MustCompile(`(?i)not allowed`)
)

var (
	durationFields = []string{"probes.timeout", "service.start_delay", "service.poll_interval"}
	nonEmptyFields = []string{"host", "log_dir", "schedule.cron", "probes.encoding"}
	rangeMessages  = map[string]string{
		"probes.ping_count":           "ping_count must be between 1 and 100",
		"service.max_concurrent_runs": "max_concurrent_runs must not be negative",
	}
)

// semantic maps the sentinel errors of Config.Validate to detail codes.
var semantic = []struct {
	err  error
	code string
}{
	{ErrEmptyHost, CodeEmptyValue},
	{ErrEmptyLogDir, CodeEmptyValue},
	{ErrUnsupportedVersion, CodeUnsupportedVersion},
	{ErrInvalidTime, CodeInvalidTime},
	{ErrInvalidInterval, CodeInvalidInterval},
	{ErrInvalidCron, CodeInvalidCron},
	{ErrInvalidTimezone, CodeInvalidTimezone},
	{ErrEmptySchedule, CodeMissingSchedule},
	{ErrAmbiguousSchedule, CodeAmbiguousSchedule},
	{ErrPollInterval, CodeInvalidPoll},
	{ErrDurationFormat, CodeInvalidDuration},
	{ErrISOFormat, CodeInvalidDuration},
}

// CueErrDetails turns a LoadConfig error into one detail per offending
// field. Schema violations carry their position in the config file,
// semantic ones come from the FieldErrors of Config.Validate.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}
	var details []CueErrorDetail
	var cerr cueerrors.Error
	if errors.As(err, &cerr) {
		details = schemaDetails(err)
	} else {
		for _, fe := range fieldErrors(err) {
			details = append(details, semanticDetail(fe))
		}
	}
	if len(details) == 0 {
		return []CueErrorDetail{{Code: CodeInvalidValue, Message: err.Error(), Raw: err.Error()}}
	}
	return details
}

func schemaDetails(err error) []CueErrorDetail {
	type key struct{ path, code string }
	seen := make(map[key]struct{})

	var out []CueErrorDetail
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		path := normalizePath(e.Path())
		code := classify(raw, path)

		k := key{path, code}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		msg := describe(code, path)
		if msg == "" {
			msg = raw
		}
		out = append(out, CueErrorDetail{
			Path:    path,
			Code:    code,
			Message: msg,
			Pos:     position(e),
			Raw:     raw,
		})
	}
	return out
}

func semanticDetail(fe *FieldError) CueErrorDetail {
	d := CueErrorDetail{
		Path:    fe.Field,
		Code:    CodeInvalidValue,
		Message: fe.Err.Error(),
		Raw:     fe.Error(),
	}
	for _, s := range semantic {
		if errors.Is(fe.Err, s.err) {
			d.Code = s.code
			if msg := describe(s.code, fe.Field); msg != "" {
				d.Message = msg
			}
			break
		}
	}
	return d
}

// fieldErrors flattens errors.Join trees.
func fieldErrors(err error) []*FieldError {
	switch e := err.(type) {
	case *FieldError:
		return []*FieldError{e}
	case interface{ Unwrap() []error }:
		var out []*FieldError
		for _, inner := range e.Unwrap() {
			out = append(out, fieldErrors(inner)...)
		}
		return out
	}
	return nil
}

// classify decides the code of a schema violation. Closedness and missing
// fields are recognized by message, everything else by the field it hit.
func classify(raw, path string) string {
	switch {
	case reNotAllowed.MatchString(raw):
		return CodeUnknownField
	case reIncomplete.MatchString(raw):
		return CodeMissingRequired
	case path == "version":
		return CodeUnsupportedVersion
	case path == "schedule.times" || strings.HasPrefix(path, "schedule.times["):
		return CodeInvalidTime
	case path == "schedule.interval_minutes":
		return CodeInvalidInterval
	case path == "probes.https":
		return CodeInvalidEnum
	case slices.Contains(durationFields, path):
		return CodeInvalidDuration
	case slices.Contains(nonEmptyFields, path) && strings.Contains(raw, `!=""`):
		return CodeEmptyValue
	}
	if _, ok := rangeMessages[path]; ok {
		return CodeOutOfRange
	}
	return CodeInvalidValue
}

func describe(code, path string) string {
	field := last(path)
	switch code {
	case CodeUnknownField:
		return fmt.Sprintf("field %s is not allowed", field)
	case CodeMissingRequired:
		return fmt.Sprintf("field %s is required", field)
	case CodeEmptyValue:
		return fmt.Sprintf("field %s must not be empty", field)
	case CodeUnsupportedVersion:
		return "only config version 0 is supported"
	case CodeInvalidTime:
		return ErrInvalidTime.Error()
	case CodeInvalidInterval:
		return "interval_minutes must be a whole number of minutes, at least 1"
	case CodeInvalidCron:
		return ErrInvalidCron.Error()
	case CodeInvalidTimezone:
		return ErrInvalidTimezone.Error()
	case CodeMissingSchedule:
		return ErrEmptySchedule.Error()
	case CodeAmbiguousSchedule:
		return ErrAmbiguousSchedule.Error()
	case CodeInvalidDuration:
		return fmt.Sprintf("field %s must be a duration like 90s, 5m or PT5M", field)
	case CodeInvalidPoll:
		return ErrPollInterval.Error()
	case CodeInvalidEnum:
		return fmt.Sprintf("field %s must be %s or %s", field, HTTPSProbeCurl, HTTPSProbeBuiltin)
	case CodeOutOfRange:
		return rangeMessages[path]
	}
	return ""
}

func position(err cueerrors.Error) CueErrorPosition {
	for _, r := range cueerrors.Positions(err) {
		if r.Filename() == "" {
			continue
		}
		return CueErrorPosition{
			Filename: r.Filename(),
			Line:     r.Line(),
			Column:   r.Column(),
		}
	}
	return CueErrorPosition{}
}

// normalizePath drops the #Config definition and writes list indexes the
// way FieldError does: schedule.times[0].
func normalizePath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	var b strings.Builder
	for _, seg := range p {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func last(p string) string {
	if i := strings.IndexByte(p, '['); i >= 0 {
		p = p[:i]
	}
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}
