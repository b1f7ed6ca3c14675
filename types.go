package main

// Item represents a single item returned by the server. Only the fields the
// tool reads are modeled; the API returns many more.
type Item struct {
	ID     int        `json:"id"`
	Fields ItemFields `json:"fields"`
}

// ItemFields holds the item fields the tool cares about.
type ItemFields struct {
	GlobalID    string `json:"globalId"`
	Description string `json:"description"`
}

// ResolvedItem pairs a user-facing global identifier with the server's
// internal item id.
type ResolvedItem struct {
	ID       int
	GlobalID string
}

// UpdateStatus represents the outcome of processing one item
type UpdateStatus string

const (
	StatusUpdated UpdateStatus = "Updated"
	StatusSkipped UpdateStatus = "Skipped"
)

// UpdateRecord tracks the outcome of processing each global identifier.
// Records are appended in processing order and never mutated afterwards.
type UpdateRecord struct {
	GlobalID string
	ItemURL  string
	Status   UpdateStatus
	Reason   string // empty for Updated
}
