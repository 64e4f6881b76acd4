package api

import (
	"context"

	"github.com/whit3rabbit/siterelay/internal/fetch"
)

// locationFetcher sends http(s) locations to the HTTP client and reads
// everything else from disk.
type locationFetcher struct {
	remote *fetch.Client
	local  fetch.FileFetcher
}

func newLocationFetcher(remote *fetch.Client) *locationFetcher {
	return &locationFetcher{remote: remote}
}

func (f *locationFetcher) Fetch(ctx context.Context, location string) (string, error) {
	if fetch.IsRemote(location) {
		return f.remote.Fetch(ctx, location)
	}
	return f.local.Fetch(ctx, location)
}
