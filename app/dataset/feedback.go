package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/umputun/sms-spam/lib/smsspam"
)

// Appender adds labeled samples to a csv file in the dataset format.
// The file is used as an extra dataset for the next training, nothing is learned online.
type Appender struct {
	fileName string
	mu       sync.Mutex
}

// NewAppender makes Appender for the file, the file created on first append
func NewAppender(fileName string) *Appender {
	return &Appender{fileName: fileName}
}

// Reader returns a reader for the file, caller must close it
func (a *Appender) Reader() (io.ReadCloser, error) {
	fh, err := os.Open(a.fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", a.fileName, err)
	}
	return fh, nil
}

// Append adds a sample to the file. Returns false if the same text with the same label is already there.
func (a *Appender) Append(s smsspam.Sample) (bool, error) {
	text := strings.Join(strings.Fields(s.Text), " ") // one line per sample
	if text == "" {
		return false, smsspam.ErrEmptyInput
	}
	if err := s.Label.Validate(); err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	fi, err := os.Stat(a.fileName)
	exists := err == nil && fi.Size() > 0 // empty file gets the header too
	if exists {
		dup, err := a.contains(text, s.Label)
		if err != nil {
			return false, err
		}
		if dup {
			return false, nil
		}
	}

	fh, err := os.OpenFile(a.fileName, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644) //nolint:gosec // keep it readable by all
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", a.fileName, err)
	}
	defer fh.Close()

	w := csv.NewWriter(fh)
	if !exists {
		if err = w.Write(header); err != nil {
			return false, fmt.Errorf("failed to write header to %s: %w", a.fileName, err)
		}
	}
	if err = w.Write([]string{text, string(s.Label)}); err != nil {
		return false, fmt.Errorf("failed to write to %s: %w", a.fileName, err)
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return false, fmt.Errorf("failed to flush %s: %w", a.fileName, err)
	}
	return true, nil
}

func (a *Appender) contains(text string, label smsspam.Label) (bool, error) {
	rd, err := a.Reader()
	if err != nil {
		return false, err
	}
	defer rd.Close()

	samples, err := Load(rd)
	var fmtErr *smsspam.DatasetFormatError
	if err != nil && !errors.As(err, &fmtErr) {
		return false, err
	}
	for _, s := range samples {
		if s.Label == label && strings.EqualFold(strings.TrimSpace(s.Text), text) {
			return true, nil
		}
	}
	return false, nil
}
