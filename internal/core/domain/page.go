package domain

import "encoding/json"

// Item is one element of a remote listing. The payload is kept opaque so the
// list controller works for any resource.
type Item struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Page is a single page returned by a listing endpoint.
type Page struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
}

// PageState is the accumulated list for one filter fingerprint.
type PageState struct {
	Items       []Item
	Page        int
	TotalPages  int
	Fingerprint string
}

// HasMore reports whether another page can be requested.
func (s PageState) HasMore() bool {
	return s.Page < s.TotalPages
}
