package naming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every naming request
const DefaultTimeout = 5 * time.Second

// Client talks to a naming Server
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the naming server at address
// ("host:port" or a full URL)
func NewClient(address string) *Client {
	base := address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Register records this server's address
func (c *Client) Register(ctx context.Context, service, qualifier, address string) error {
	return c.post(ctx, "/register", RegisterRequest{Service: service, Qualifier: qualifier, Address: address})
}

// Delete removes a registration
func (c *Client) Delete(ctx context.Context, service, qualifier, address string) error {
	return c.post(ctx, "/delete", RegisterRequest{Service: service, Qualifier: qualifier, Address: address})
}

// LookupAll returns every address for service/qualifier; an empty
// qualifier matches every server of the service
func (c *Client) LookupAll(ctx context.Context, service, qualifier string) ([]string, error) {
	q := url.Values{}
	q.Set("service", service)
	if qualifier != "" {
		q.Set("qualifier", qualifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lookup?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var lr LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	return lr.Addresses, nil
}

// Lookup returns the first address registered for service/qualifier.
// No registration is ok=false with a nil error.
func (c *Client) Lookup(ctx context.Context, service, qualifier string) (string, bool, error) {
	addrs, err := c.LookupAll(ctx, service, qualifier)
	if err != nil {
		return "", false, err
	}
	if len(addrs) == 0 {
		return "", false, nil
	}
	return addrs[0], true, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	bs, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bs))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func decodeError(resp *http.Response) error {
	var er errorResponse
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &er); err != nil || er.Error == "" {
		er.Error = strings.TrimSpace(string(raw))
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotRegistered, er.Error)
	case http.StatusBadRequest:
		return errors.New(er.Error)
	default:
		return fmt.Errorf("naming server returned %d: %s", resp.StatusCode, er.Error)
	}
}

// StaticDirectory is an in-memory directory for tests and single-host
// deployments
type StaticDirectory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewStaticDirectory creates an empty StaticDirectory
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{entries: make(map[string]string)}
}

// Register records address for service/qualifier
func (d *StaticDirectory) Register(_ context.Context, service, qualifier, address string) error {
	if err := validate(service, qualifier); err != nil {
		return err
	}
	if address == "" {
		return ErrEmptyAddress
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[string(entryKey(service, qualifier))] = address
	return nil
}

// Delete removes a registration
func (d *StaticDirectory) Delete(_ context.Context, service, qualifier, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := string(entryKey(service, qualifier))
	if _, ok := d.entries[key]; !ok {
		return ErrNotRegistered
	}
	delete(d.entries, key)
	return nil
}

// Lookup returns the address registered for service/qualifier
func (d *StaticDirectory) Lookup(_ context.Context, service, qualifier string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	addr, ok := d.entries[string(entryKey(service, qualifier))]
	return addr, ok, nil
}
