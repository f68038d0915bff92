package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openfed/metaregistry/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "metaregistry"
)

// Client talks to the import service: it hands over an entity type and a
// metadata URL and receives the parsed field map back. Parse failures arrive
// as an "errors" key inside the body, not as an HTTP error.
type Client struct {
	client   *http.Client
	endpoint string
}

func NewClient(endpoint string) *Client {
	httpClient := &http.Client{
		Timeout: defaultTimeout,
	}
	c := &Client{
		client:   httpClient,
		endpoint: endpoint,
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

type importRequest struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ImportFromURL fetches and parses the metadata hosted at url. The returned
// map either holds the parsed fields (with a nested metaDataFields map) or
// an "errors" entry describing the parse failure.
func (c *Client) ImportFromURL(ctx context.Context, entityType domain.EntityType, url string) (map[string]any, error) {
	payload, err := json.Marshal(importRequest{Type: entityType.String(), URL: url})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("import service returned %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding import result: %w", err)
	}
	return result, nil
}
