package domain

import "strings"

// OperationKind tells whether an operation mutates remote state.
type OperationKind string

const (
	OperationRead  OperationKind = "read"
	OperationWrite OperationKind = "write"
)

// Operation describes a single call against the remote service.
type Operation struct {
	Kind OperationKind `json:"kind"`

	// Key identifies the logical resource for caching and dedup,
	// e.g. "students/list?page=2&search=ann".
	Key string `json:"key"`

	// Method and Path form the transport descriptor (e.g. "GET", "/students").
	Method string `json:"method"`
	Path   string `json:"path"`

	Payload     []byte `json:"payload,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	// IdempotencyKey lets the server reject a duplicate write caused by a retry.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// IsRead reports whether the operation is a cacheable read.
func (o Operation) IsRead() bool {
	return o.Kind == OperationRead
}

// IsWrite reports whether the operation mutates remote state.
func (o Operation) IsWrite() bool {
	return o.Kind == OperationWrite
}

// Resource returns the resource prefix of the operation key.
func (o Operation) Resource() string {
	return ResourcePrefix(o.Key)
}

// ResourcePrefix returns the segment of key before the first '/' or '?'.
// Keys without a separator are their own prefix.
func ResourcePrefix(key string) string {
	if i := strings.IndexAny(key, "/?"); i >= 0 {
		return key[:i]
	}
	return key
}
