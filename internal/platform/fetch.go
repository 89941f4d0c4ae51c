package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxFetchBytes caps attachment downloads to guard against runaway bodies.
const maxFetchBytes = 10 * 1024 * 1024

// FetchPartBytes downloads the raw bytes behind an image or file part,
// resolving the platform file id to a URL through the adapter when needed.
func FetchPartBytes(ctx context.Context, client *http.Client, adapter Adapter, part Part) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	url := part.URL
	if url == "" {
		if adapter == nil {
			return nil, ErrNoAdapter
		}

		var err error

		url, err = adapter.ResolveFileURL(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve file URL: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment body: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("attachment body is empty")
	}

	return data, nil
}
