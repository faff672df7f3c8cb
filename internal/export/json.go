package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/project-tktt/go-scraper/internal/domain"
)

type document struct {
	Timestamp     string       `json:"timestamp"`
	URL           string       `json:"url"`
	TotalElements int          `json:"totalElements"`
	Headers       []string     `json:"headers"`
	Data          []orderedRow `json:"data"`
}

// orderedRow marshals a row with its keys in column order
type orderedRow struct {
	columns []string
	values  map[string]string
}

func (r orderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, col := range r.columns {
		v, ok := r.values[col]
		if !ok {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, col); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeString(&buf, v); err != nil {
			return nil, err
		}
		n++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}

// WriteJSON writes the result with its timestamp and source URL, indented
// by two spaces. Output is stable for the same inputs.
func WriteJSON(w io.Writer, result *domain.ExtractionResult, meta Meta) error {
	doc := document{
		Timestamp:     domain.FormatTimestamp(meta.Timestamp),
		URL:           meta.URL,
		TotalElements: result.MatchCount,
		Headers:       result.Columns,
		Data:          make([]orderedRow, 0, len(result.Rows)),
	}
	if doc.Headers == nil {
		doc.Headers = []string{}
	}
	for _, row := range result.Rows {
		doc.Data = append(doc.Data, orderedRow{columns: result.Columns, values: row})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}
