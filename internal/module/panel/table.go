package panel

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/project-tktt/go-scraper/internal/common/cleaner"
	"github.com/project-tktt/go-scraper/internal/domain"
)

// NoDataMessage is shown in place of an empty table
const NoDataMessage = "No data found with the specified selector."

// QuickSelector is a preset offered next to the selector input
type QuickSelector struct {
	Label    string
	Selector string
}

// QuickSelectors lists the presets in display order
var QuickSelectors = []QuickSelector{
	{"All Links", "a"},
	{"All Images", "img"},
	{"All Headings", "h1, h2, h3, h4, h5, h6"},
	{"All Paragraphs", "p"},
	{"Table Rows", "tr"},
	{"List Items", "li"},
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// RenderTable writes the current result as a numbered table, cells cut to
// a preview length. HTML cells are shown as their text only.
func (c *Controller) RenderTable(w io.Writer) error {
	result, _, ok := c.current()
	if !ok {
		return ErrNoResult
	}
	_, err := io.WriteString(w, RenderResult(result)+"\n")
	return err
}

// RenderResult renders a result the way RenderTable does
func RenderResult(result *domain.ExtractionResult) string {
	if result == nil || len(result.Rows) == 0 {
		return NoDataMessage
	}

	cl := cleaner.NewStrictCleaner()
	headers := append([]string{"#"}, result.Columns...)

	rows := make([][]string, 0, len(result.Rows))
	for i, row := range result.Rows {
		cells := make([]string, 0, len(headers))
		cells = append(cells, strconv.Itoa(i+1))
		for _, col := range result.Columns {
			cells = append(cells, cl.Preview(row[col], col == domain.ColumnHTMLContent))
		}
		rows = append(rows, cells)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	return fmt.Sprintf("Results (%d elements found)\n%s", result.MatchCount, t.Render())
}
