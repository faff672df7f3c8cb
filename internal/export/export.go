// Package export writes an extraction result as a downloadable file.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FilePrefix starts every exported file name
const FilePrefix = "scraped_data_"

// ErrUnknownFormat is returned for anything but csv and json
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat converts user input to a Format
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type served for the format
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json;charset=utf-8"
	}
	return "text/csv;charset=utf-8"
}

// FileName builds scraped_data_<unix millis>.<ext>
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("%s%d.%s", FilePrefix, now.UnixMilli(), f)
}

// Meta describes where and when a result was taken. Only JSON uses it.
type Meta struct {
	Timestamp time.Time
	URL       string
}

// Write encodes result in format f
func Write(w io.Writer, f Format, result *domain.ExtractionResult, meta Meta) error {
	if result == nil {
		result = domain.EmptyResult()
	}
	switch f {
	case FormatCSV:
		return WriteCSV(w, result)
	case FormatJSON:
		return WriteJSON(w, result, meta)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}
