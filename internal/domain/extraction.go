package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is the extraction strategy applied to every matched element
type Mode string

const (
	ModeText       Mode = "text"
	ModeAttributes Mode = "attributes"
	ModeHTML       Mode = "html"
)

// Column names, fixed per mode
const (
	ColumnElementText = "Element Text"
	ColumnTagName     = "Tag Name"
	ColumnAttributes  = "Attributes"
	ColumnTextContent = "Text Content"
	ColumnHTMLContent = "HTML Content"
)

// ErrInvalidMode is returned by ParseMode for anything outside text/attributes/html
var ErrInvalidMode = errors.New("invalid extraction type")

// ParseMode converts user input to a Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	switch m {
	case ModeText, ModeAttributes, ModeHTML:
		return true
	}
	return false
}

// Columns returns the column set for the mode. It depends on nothing but
// the mode; unknown modes have no columns.
func (m Mode) Columns() []string {
	switch m {
	case ModeText:
		return []string{ColumnElementText}
	case ModeAttributes:
		return []string{ColumnTagName, ColumnAttributes, ColumnTextContent}
	case ModeHTML:
		return []string{ColumnHTMLContent}
	}
	return nil
}

// PageID identifies a loaded page (the browser's tab id). Zero means absent.
type PageID int

// ExtractionRequest is created once per panel submission
type ExtractionRequest struct {
	Selector     string `json:"selector"`
	Mode         Mode   `json:"extractionType"`
	TargetPageID PageID `json:"tabId"`
}

// ExtractionResult is the tabular output of one selector query
type ExtractionResult struct {
	Rows       []map[string]string `json:"data"`
	Columns    []string            `json:"headers"`
	MatchCount int                 `json:"totalElements"`
}

// EmptyResult is what the extractor answers for bad selectors and zero matches
func EmptyResult() *ExtractionResult {
	return &ExtractionResult{
		Rows:    []map[string]string{},
		Columns: []string{},
	}
}

// Validate checks that every row carries exactly the result's columns and
// that MatchCount agrees with the number of rows.
func (r *ExtractionResult) Validate() error {
	if r.MatchCount != len(r.Rows) {
		return fmt.Errorf("match count %d does not equal row count %d", r.MatchCount, len(r.Rows))
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("row %d has %d keys, want %d", i, len(row), len(r.Columns))
		}
		for _, col := range r.Columns {
			if _, ok := row[col]; !ok {
				return fmt.Errorf("row %d missing column %q", i, col)
			}
		}
	}
	return nil
}

// Clone returns a deep copy
func (r *ExtractionResult) Clone() *ExtractionResult {
	out := &ExtractionResult{
		Rows:       make([]map[string]string, len(r.Rows)),
		Columns:    append([]string{}, r.Columns...),
		MatchCount: r.MatchCount,
	}
	for i, row := range r.Rows {
		cp := make(map[string]string, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}
