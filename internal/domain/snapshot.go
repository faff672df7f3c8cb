package domain

import "time"

// SnapshotKeyPrefix prefixes every stored snapshot key
const SnapshotKeyPrefix = "scrape_"

// ISOTimestamp matches the millisecond UTC form produced by Date.toISOString
const ISOTimestamp = "2006-01-02T15:04:05.000Z"

// StoredSnapshot is an immutable saved extraction result. The result fields
// are flattened next to the capture metadata.
type StoredSnapshot struct {
	ExtractionResult
	Timestamp string `json:"timestamp"`
	SourceURL string `json:"url"`
}

// NewSnapshot captures a copy of result so later panel updates cannot
// reach the stored value.
func NewSnapshot(result *ExtractionResult, sourceURL string, now time.Time) *StoredSnapshot {
	return &StoredSnapshot{
		ExtractionResult: *result.Clone(),
		Timestamp:        FormatTimestamp(now),
		SourceURL:        sourceURL,
	}
}

// Key is the storage key derived from the capture timestamp
func (s *StoredSnapshot) Key() string {
	return SnapshotKey(s.Timestamp)
}

// SnapshotKey builds a storage key from an ISO timestamp
func SnapshotKey(timestamp string) string {
	return SnapshotKeyPrefix + timestamp
}

// FormatTimestamp renders t as an ISO-8601 UTC string with milliseconds
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(ISOTimestamp)
}
