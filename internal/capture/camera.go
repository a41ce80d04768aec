package capture

import (
	"context"
	"fmt"
	"os"
)

// FileCamera "captures" by reading an image file, for headless operators and
// the CLI. Permission is always granted.
type FileCamera struct {
	Path string
}

func (c FileCamera) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (c FileCamera) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", c.Path, err)
	}
	return data, nil
}
