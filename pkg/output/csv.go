package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
)

// CSVSink writes one CSV file per table into a directory.
type CSVSink struct {
	dir    string
	logger zerolog.Logger
}

// NewCSVSink creates a sink writing into dir. The directory must exist.
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{
		dir:    dir,
		logger: logging.NewLogger("csv-sink"),
	}
}

// Path returns the file path the table is written to.
func (s *CSVSink) Path(t *Table) (string, error) {
	name, err := FileName(t)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Write implements Sink. An existing file for the same currency and range is
// replaced.
func (s *CSVSink) Write(ctx context.Context, t *Table) (err error) {
	defer func() { observeWrite("csv", t, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.Path(t)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}

	if err := writeAtomic(path, &buf); err != nil {
		return err
	}

	event := s.logger.Info().
		Str("currency", t.Currency).
		Str("path", path)
	if t.NoData() {
		event.Msg("No records found")
	} else {
		event.Int("rows", len(t.Rows)).Msg("CSV written")
	}
	return nil
}

// writeAtomic writes reader to a temp file in the target directory and
// renames it over filename.
func writeAtomic(filename string, reader io.Reader) error {
	dir := filepath.Dir(filename)
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	if _, err := io.Copy(tempFile, reader); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("copy to temp: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
