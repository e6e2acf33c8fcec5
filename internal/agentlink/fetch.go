package agentlink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError reports a non-success response from the content endpoint.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: http %d", e.Path, e.Code)
}

// HTTPFetcher downloads artifact content from the agent server's REST
// endpoint, keyed by session identifier and remote path.
type HTTPFetcher struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
		Client:  http.DefaultClient,
	}
}

func (f *HTTPFetcher) FetchFile(ctx context.Context, sessionID, remotePath string) ([]byte, error) {
	if remotePath == "" || remotePath == UnknownFile {
		return nil, fmt.Errorf("no usable path for artifact")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/sessions/%s/files/%s/content", strings.TrimRight(f.BaseURL, "/"), sessionID, remotePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build content request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Path: remotePath}
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", remotePath, err)
	}
	return content, nil
}
