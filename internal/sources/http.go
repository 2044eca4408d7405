package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/smazurov/lwalight/internal/version"
)

// maxBody bounds how much of a status document is read.
const maxBody = 4 << 20

func httpGet(ctx context.Context, client *http.Client, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, unavailable("bad request for %s: %v", url, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp)
		return resp, unavailable("%s %s returned status %d", method, url, resp.StatusCode)
	}
	return resp, nil
}

func readBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("failed to read response: %w", err))
	}
	return data, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	resp.Body.Close()
}
