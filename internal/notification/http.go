package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const httpTimeout = 10 * time.Second

// poster delivers JSON alert payloads over HTTP.
type poster struct {
	name   string
	client *http.Client
}

func newPoster(name string) poster {
	return poster{name: name, client: &http.Client{Timeout: httpTimeout}}
}

// post sends v as a JSON body to url. Any non-2xx status is an error.
func (p poster) post(ctx context.Context, url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
	}
	return nil
}
