package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
)

// NewRead creates a cacheable GET operation.
func NewRead(key, path string) domain.Operation {
	return domain.Operation{
		Kind:   domain.OperationRead,
		Key:    key,
		Method: http.MethodGet,
		Path:   path,
	}
}

// NewWrite creates a write operation with a fresh idempotency key.
func NewWrite(key, method, path string, payload []byte, contentType string) domain.Operation {
	return domain.Operation{
		Kind:           domain.OperationWrite,
		Key:            key,
		Method:         method,
		Path:           path,
		Payload:        payload,
		ContentType:    contentType,
		IdempotencyKey: uuid.NewString(),
	}
}

// NewJSONWrite creates a POST write whose payload is v encoded as JSON.
func NewJSONWrite(key, path string, v any) (domain.Operation, error) {
	var payload []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("encode %s payload: %w", key, err)
		}
		payload = b
	}
	return NewWrite(key, http.MethodPost, path, payload, "application/json"), nil
}

// NewUploadWrite creates a multipart POST carrying a single file.
func NewUploadWrite(key, path, field, filename string, data []byte, fields map[string]string) (domain.Operation, error) {
	payload, contentType, err := provider.MultipartBody(field, filename, data, fields)
	if err != nil {
		return domain.Operation{}, err
	}
	return NewWrite(key, http.MethodPost, path, payload, contentType), nil
}
