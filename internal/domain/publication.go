package domain

import "time"

// ArtifactEvent announces that an artifact was written and, when a sink is
// configured, published.
type ArtifactEvent struct {
	RunID       string    `json:"run_id"`
	Pipeline    string    `json:"pipeline"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
