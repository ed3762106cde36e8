package model

// Suggestion is a single autocomplete result: a previously-seen phrase and how
// many times it has been submitted across all replicas.
type Suggestion struct {
	Phrase string `json:"phrase"`
	Count  int64  `json:"count"`
}
