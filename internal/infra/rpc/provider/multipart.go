package provider

import (
	"bytes"
	"fmt"
	"maps"
	"mime/multipart"
	"slices"
)

// MultipartBody encodes a single file part plus form fields, returning the
// payload and its Content-Type (with boundary).
func MultipartBody(field, filename string, data []byte, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
