package feed

import (
	"bytes"
	"context"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Default feed locations. The delimited feed is the Wiz Research IOC list;
// the structured feed has no public default and runs from its bundled
// snapshot unless feeds.structured.url is configured.
const (
	DefaultDelimitedURL  = "https://raw.githubusercontent.com/wiz-sec-public/wiz-research-iocs/main/reports/shai-hulud-2-packages.csv"
	DefaultStructuredURL = ""
)

// DefaultSources returns the two independently sourced feeds.
func DefaultSources() []Source {
	return []Source{
		{
			Name:      "delimited",
			URL:       DefaultDelimitedURL,
			Format:    FormatDelimited,
			CacheFile: "delimited-feed.csv",
			Bundled:   "packages.csv",
		},
		{
			Name:      "structured",
			URL:       DefaultStructuredURL,
			Format:    FormatStructured,
			CacheFile: "structured-feed.json",
			Bundled:   "packages.json",
		},
	}
}

// SourceResult is the outcome of loading one source.
type SourceResult struct {
	Name    string `json:"name"`
	Origin  Origin `json:"origin"`
	Entries int    `json:"entries"`
	Err     error  `json:"-"`
}

// LoadDenylist fetches every source concurrently and merges whatever
// succeeded. A failing source never blocks or cancels the others; with zero
// successful sources the returned denylist is empty and the scan runs in
// forensic-only mode.
func LoadDenylist(ctx context.Context, f *Fetcher, sources []Source) (Denylist, []SourceResult) {
	results := make([]SourceResult, len(sources))
	lists := make([]Denylist, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = SourceResult{Name: src.Name}
			data, origin, err := f.Fetch(ctx, src)
			if err != nil {
				results[i].Origin = OriginFailed
				results[i].Err = err
				return nil
			}
			deny, err := Parse(src.Format, data)
			if err != nil {
				results[i].Origin = OriginFailed
				results[i].Err = err
				return nil
			}
			results[i].Origin = origin
			results[i].Entries = len(deny)
			lists[i] = deny
			return nil
		})
	}
	// Workers record failures in results and always return nil.
	g.Wait()

	merged := make(Denylist)
	var errs *multierror.Error
	for i, res := range results {
		if res.Err != nil {
			errs = multierror.Append(errs, res.Err)
			continue
		}
		merged.Merge(lists[i])
		log.Infof("feed %s: %d packages (%s)", res.Name, res.Entries, res.Origin)
	}
	if err := errs.ErrorOrNil(); err != nil {
		log.Warnf("some threat feeds are unavailable: %v", err)
	}
	if len(merged) == 0 {
		log.Warn("denylist is empty, running forensic checks only")
	}
	return merged, results
}

// Parse dispatches data to the parser for format.
func Parse(format Format, data []byte) (Denylist, error) {
	if format == FormatStructured {
		return ParseStructured(data)
	}
	return ParseDelimited(bytes.NewReader(data))
}
