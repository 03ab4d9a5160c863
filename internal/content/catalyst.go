package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/udisondev/worldstream/internal/parcel"
)

// Catalyst is the HTTP client of a catalyst content server.
type Catalyst struct {
	baseURL string
	client  *http.Client
}

// NewCatalyst returns a client for the server at baseURL.
func NewCatalyst(baseURL string, timeout time.Duration) *Catalyst {
	return &Catalyst{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type pointersRequest struct {
	Pointers []string `json:"pointers"`
}

// Descriptors implements Service.
func (c *Catalyst) Descriptors(ctx context.Context, parcels []parcel.Parcel) ([]Descriptor, error) {
	body, err := json.Marshal(pointersRequest{Pointers: parcel.Pointers(parcels)})
	if err != nil {
		return nil, fmt.Errorf("encoding pointers: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/content/entities/active", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building descriptors request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding descriptors: %v", ErrNetwork, err)
	}
	return out, nil
}

// Download implements Service.
func (c *Catalyst) Download(ctx context.Context, hash string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/content/contents/"+hash, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrNetwork, hash, err)
	}
	return b, nil
}

func (c *Catalyst) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrNetwork, req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}
