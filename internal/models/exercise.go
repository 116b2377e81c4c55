// ABOUTME: Exercise catalog record as served by the remote source.
// ABOUTME: Routines reference exercises by id; the catalog is not owned locally.
package models

// Exercise is an entry in the remote exercise catalog.
type Exercise struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	VideoURL     string `json:"video_url,omitempty"`
}
