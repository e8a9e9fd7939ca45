package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

var csvHeader = []string{"kind", "package", "version", "location", "detail"}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(r), "failed to encode report")
}

// WriteCSV writes one row per issue.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}
	for _, issue := range r.Issues {
		row := []string{string(issue.Kind), issue.Package, issue.Version, issue.Location, issue.Detail}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "failed to write CSV row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush CSV")
}

// ExportJSON writes r to the file at path.
func ExportJSON(path string, r *Report) error {
	return exportFile(path, r, WriteJSON)
}

// ExportCSV writes r's issues to the file at path.
func ExportCSV(path string, r *Report) error {
	return exportFile(path, r, WriteCSV)
}

func exportFile(path string, r *Report, write func(io.Writer, *Report) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := write(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}
