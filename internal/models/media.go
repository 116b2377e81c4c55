// ABOUTME: MediaEntry model for cached exercise thumbnails and videos.
// ABOUTME: Entries are keyed by source URL and never mutated after creation.
package models

import "time"

// MediaType is the kind of cached asset.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// IsValidMediaType checks if a string names a known media type.
func IsValidMediaType(s string) bool {
	return s == string(MediaImage) || s == string(MediaVideo)
}

// MediaEntry is a cached binary asset. ID is always equal to URL.
type MediaEntry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	Blob      []byte    `json:"blob,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// NewMediaEntry creates an entry for a freshly fetched blob.
func NewMediaEntry(url string, mediaType MediaType, blob []byte, fetchedAt time.Time) *MediaEntry {
	return &MediaEntry{
		ID:        url,
		URL:       url,
		Type:      mediaType,
		Blob:      blob,
		Timestamp: fetchedAt,
		Size:      int64(len(blob)),
	}
}
