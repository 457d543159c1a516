// Package transport implements the narrow network collaborator
// spec.md §6 describes: fetch(uri, body) -> bytes, over http(s)://,
// ksi+tcp://, and file:// schemes. The core never spawns goroutines or
// retries on its own; a context's transport call blocks the caller's
// own goroutine for the duration of one request (spec.md §5).
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ErrTransport wraps any network-level failure: a malformed URI, a
// connection error, a timeout, or a non-success HTTP status.
var ErrTransport = errors.New("transport: request failed")

// Fetcher is the collaborator interface every signer, extender, and
// publications-file client call goes through.
type Fetcher interface {
	Fetch(uri string, body []byte) ([]byte, error)
}

// HTTPFetcher dispatches http(s):// and ksi+tcp:// requests over a
// plain TCP/HTTP round trip, and serves file:// URIs straight off disk
// for test fixtures (spec.md §6: "file:// ... returns the file contents
// regardless of request body").
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher returns a Fetcher with the given per-request timeout.
// A zero timeout means no deadline beyond the underlying transport's
// own defaults.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(uri string, body []byte) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing uri %q: %v", ErrTransport, uri, err)
	}

	switch u.Scheme {
	case "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading fixture %q: %v", ErrTransport, u.Path, err)
		}
		return data, nil

	case "ksi+tcp":
		return f.fetchTCP(u, body)

	case "http", "https":
		return f.fetchHTTP(uri, body)

	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrTransport, u.Scheme)
	}
}

func (f *HTTPFetcher) fetchHTTP(uri string, body []byte) ([]byte, error) {
	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		method = http.MethodPost
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, uri, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/ksi-request")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrTransport, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrTransport, resp.StatusCode)
	}
	return data, nil
}

// fetchTCP sends body length-prefixed is not how KSI's raw TCP
// transport works; it simply writes the PDU bytes and reads until the
// peer closes or the deadline expires, mirroring the aggregator/
// extender's raw-socket protocol.
func (f *HTTPFetcher) fetchTCP(u *url.URL, body []byte) ([]byte, error) {
	dialer := net.Dialer{Timeout: f.Timeout}
	conn, err := dialer.Dial("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrTransport, u.Host, err)
	}
	defer conn.Close()

	if f.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(f.Timeout))
	}
	if _, err := conn.Write(body); err != nil {
		return nil, fmt.Errorf("%w: writing request: %v", ErrTransport, err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}
	return data, nil
}

// WithContext adapts ctx's cancellation onto a single Fetch call; the
// core itself only ever calls Fetch synchronously from the caller's own
// goroutine (spec.md §5 "Cancellation is cooperative via the
// transport's timeout").
func WithContext(ctx context.Context, f Fetcher, uri string, body []byte) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := f.Fetch(uri, body)
		ch <- result{data, err}
	}()
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	}
}
