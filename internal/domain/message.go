package domain

// MessageType tags every message crossing a context boundary
type MessageType string

const (
	// MessageScrapeContent goes from the panel to the coordinator
	MessageScrapeContent MessageType = "SCRAPE_CONTENT"
	// MessageExtractContent goes from the coordinator to a page
	MessageExtractContent MessageType = "EXTRACT_CONTENT"
)

// ScrapeResponse is the coordinator's reply to SCRAPE_CONTENT
type ScrapeResponse struct {
	Success bool              `json:"success"`
	Data    *ExtractionResult `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
}
