package diag

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	ReportTitle     = "COMPREHENSIVE NETWORK DIAGNOSTIC REPORT"
	ReportSeparator = "================================================="
	GeneratedPrefix = "Report generated on: "
	HostPrefix      = "Target Host: "
	// TimeLayout is the layout of the generation time in the report header.
	TimeLayout = "2006-01-02 15:04:05 -0700"
)

// Section is the verbatim output of one stage.
type Section struct {
	Title string
	Text  string
}

// Report is the result of one diagnostic run. Sections follow the stage
// order of the pipeline which produced it.
type Report struct {
	Host        string
	GeneratedAt time.Time
	Sections    []Section
}

// SectionHeader returns the header line of the idx-th (0 based) section.
func SectionHeader(idx int, title string) string {
	return fmt.Sprintf("===== %d. %s =====", idx+1, title)
}

// Render writes the plain text form of the report. Every section is its
// header, an empty line, the text and an empty line.
func (r Report) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, ReportTitle)
	fmt.Fprintln(bw, ReportSeparator)
	fmt.Fprintln(bw, GeneratedPrefix+r.GeneratedAt.Format(TimeLayout))
	fmt.Fprintln(bw, HostPrefix+r.Host)
	fmt.Fprintln(bw)
	for i, s := range r.Sections {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, SectionHeader(i, s.Title))
		fmt.Fprintln(bw)
		bw.WriteString(s.Text)
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func (r Report) String() string {
	var sb strings.Builder
	_ = r.Render(&sb)
	return sb.String()
}
