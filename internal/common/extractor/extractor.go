package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/project-tktt/go-scraper/internal/domain"
)

var errInvalidSelector = errors.New("invalid selector")

// Extract runs selector against doc and turns every match into one row.
// A selector that does not compile, and any failure while building rows,
// yields the empty result: bad user input is never reported as a fault.
func Extract(doc *goquery.Document, selector string, mode domain.Mode) *domain.ExtractionResult {
	result, _ := extract(doc, selector, mode)
	return result
}

// extract is Extract that also says why it fell back to the empty result
func extract(doc *goquery.Document, selector string, mode domain.Mode) (result *domain.ExtractionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = domain.EmptyResult()
			err = fmt.Errorf("build rows: %v", rec)
		}
	}()

	if doc == nil {
		return domain.EmptyResult(), nil
	}

	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return domain.EmptyResult(), fmt.Errorf("%w: %v", errInvalidSelector, err)
	}

	matches := doc.FindMatcher(matcher)
	if matches.Length() == 0 || !mode.Valid() {
		return domain.EmptyResult(), nil
	}

	columns := mode.Columns()
	rows := make([]map[string]string, 0, matches.Length())
	matches.Each(func(_ int, el *goquery.Selection) {
		rows = append(rows, buildRow(el, mode))
	})

	return &domain.ExtractionResult{
		Rows:       rows,
		Columns:    columns,
		MatchCount: len(rows),
	}, nil
}

func buildRow(el *goquery.Selection, mode domain.Mode) map[string]string {
	switch mode {
	case domain.ModeText:
		return map[string]string{
			domain.ColumnElementText: strings.TrimSpace(el.Text()),
		}
	case domain.ModeAttributes:
		return map[string]string{
			domain.ColumnTagName:     strings.ToLower(goquery.NodeName(el)),
			domain.ColumnAttributes:  attributesJSON(el.Nodes[0]),
			domain.ColumnTextContent: strings.TrimSpace(el.Text()),
		}
	case domain.ModeHTML:
		return map[string]string{
			domain.ColumnHTMLContent: outerHTML(el.Nodes[0]),
		}
	}
	return map[string]string{}
}

// attributesJSON encodes every attribute of n as a JSON object in source
// order. The first occurrence of a duplicated name wins, and markup
// characters are left unescaped.
func attributesJSON(n *html.Node) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	seen := make(map[string]bool, len(n.Attr))
	out := []byte{'{'}
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		if len(out) > 1 {
			out = append(out, ',')
		}
		out = append(out, encodeString(enc, &buf, name)...)
		out = append(out, ':')
		out = append(out, encodeString(enc, &buf, a.Val)...)
	}
	out = append(out, '}')
	return string(out)
}

func encodeString(enc *json.Encoder, buf *bytes.Buffer, s string) []byte {
	buf.Reset()
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}
