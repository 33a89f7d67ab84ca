package tool

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds every request made by the tools in this package.
	DefaultTimeout = 30 * time.Second
	// MaxBodySize caps the bytes read from a response.
	MaxBodySize = 10 * 1024 * 1024
)

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// do sends req and returns the body of a 200 response.
func do(client *http.Client, req *http.Request, service string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return readBody(resp, service)
}

// readBody consumes and closes the body of resp.
func readBody(resp *http.Response, service string) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status code %d: %s", service, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
