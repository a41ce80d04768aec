package paging

import (
	"net/url"
	"strings"
)

// Filter is the user-controlled part of a listing request.
type Filter struct {
	Search string
	Params map[string]string
}

// Fingerprint returns a canonical identity for the filter. Two filters that
// would produce the same request share a fingerprint.
func (f Filter) Fingerprint() string {
	v := url.Values{}
	for k, val := range f.Params {
		if val != "" {
			v.Set(k, val)
		}
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		v.Set("search", s)
	}
	return v.Encode()
}
