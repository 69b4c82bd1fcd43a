package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Summary is the header of one stored report.
type Summary struct {
	Entry
	Host        string
	GeneratedAt time.Time
	Sections    int
	// Err is set when the file could not be parsed.
	Err error
}

// Summarize reads entries with at most limit files open at once. Summaries
// keep the order of entries; an unreadable file only sets its Err. Canceled
// ctx ends the processing.
func Summarize(ctx context.Context, entries []Entry, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	ret := make([]Summary, len(entries))
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ret[i].Entry = e
			rep, err := ReadFile(e.Path)
			if err != nil {
				ret[i].Err = err
				return nil
			}
			ret[i].Host = rep.Host
			ret[i].GeneratedAt = rep.GeneratedAt
			ret[i].Sections = len(rep.Sections)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}
