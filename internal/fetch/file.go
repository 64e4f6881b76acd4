package fetch

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileFetcher reads documents from the local filesystem. It accepts plain
// paths and file:// URLs.
type FileFetcher struct{}

// Fetch reads the file named by location.
func (FileFetcher) Fetch(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := strings.TrimPrefix(location, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyBody, path)
	}
	return string(data), nil
}

// IsRemote reports whether location should be fetched over HTTP.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
