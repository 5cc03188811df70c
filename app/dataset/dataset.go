// Package dataset reads labeled sms samples from csv files and appends feedback samples for retraining.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/umputun/sms-spam/lib/smsspam"
)

// header columns, in order
var header = []string{"text", "label"}

// LoadFile reads samples from the csv file
func LoadFile(path string) ([]smsspam.Sample, error) {
	fh, err := os.Open(path) //nolint:gosec // path is controlled by the user
	if err != nil {
		return nil, fmt.Errorf("can't open dataset %s: %w", path, err)
	}
	defer fh.Close()
	return Load(fh)
}

// Load reads samples from csv with "text,label" header, fields are double-quote escaped.
// All malformed rows are reported together, as *smsspam.DatasetFormatError each.
func Load(r io.Reader) ([]smsspam.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // column count checked per row to report all bad rows

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &smsspam.DatasetFormatError{Reason: "empty dataset"}
	}
	if err != nil {
		return nil, parseError(err)
	}
	if !isHeader(hdr) {
		return nil, &smsspam.DatasetFormatError{Line: 1, Reason: fmt.Sprintf("expected header %q, got %q",
			strings.Join(header, ","), strings.Join(hdr, ","))}
	}

	errs := new(multierror.Error)
	res := []smsspam.Sample{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv syntax errors leave the reader in unknown position, stop here
			errs = multierror.Append(errs, parseError(err))
			break
		}
		line, _ := cr.FieldPos(0)
		sample, err := parseRecord(rec, line)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		res = append(res, sample)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, &smsspam.DatasetFormatError{Reason: "no samples"}
	}
	return res, nil
}

func parseRecord(rec []string, line int) (smsspam.Sample, error) {
	if len(rec) != len(header) {
		return smsspam.Sample{}, &smsspam.DatasetFormatError{Line: line,
			Reason: fmt.Sprintf("expected %d columns, got %d", len(header), len(rec))}
	}
	if strings.TrimSpace(rec[1]) == "" {
		return smsspam.Sample{}, &smsspam.DatasetFormatError{Line: line, Reason: "empty label"}
	}
	label, err := smsspam.ParseLabel(rec[1])
	if err != nil {
		return smsspam.Sample{}, &smsspam.DatasetFormatError{Line: line, Reason: err.Error()}
	}
	if strings.TrimSpace(rec[0]) == "" {
		return smsspam.Sample{}, &smsspam.DatasetFormatError{Line: line, Reason: "empty text"}
	}
	return smsspam.Sample{Text: rec[0], Label: label}, nil
}

func parseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &smsspam.DatasetFormatError{Line: pe.Line, Reason: pe.Err.Error()}
	}
	return fmt.Errorf("can't read dataset: %w", err)
}

func isHeader(rec []string) bool {
	if len(rec) != len(header) {
		return false
	}
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(rec[i], "\ufeff")), h) {
			return false
		}
	}
	return true
}

// Texts returns texts of the samples, in order
func Texts(samples []smsspam.Sample) []string {
	res := make([]string, len(samples))
	for i, s := range samples {
		res[i] = s.Text
	}
	return res
}

// Labels returns labels of the samples, in order
func Labels(samples []smsspam.Sample) []smsspam.Label {
	res := make([]smsspam.Label, len(samples))
	for i, s := range samples {
		res[i] = s.Label
	}
	return res
}
