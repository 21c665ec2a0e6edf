// Package client talks to the backend collaborators: identity, order gateway and kitchen control.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"order-sync/internal/domain"
)

const maxBody = 1 << 20

// response is a decoded reply: status plus raw body for error mapping.
type response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r response) ok() bool { return r.Status >= 200 && r.Status < 300 }

func (r response) decode(out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type requester struct {
	base string
	hc   *http.Client
}

func newRequester(base string, hc *http.Client) requester {
	if hc == nil {
		hc = http.DefaultClient
	}
	return requester{base: strings.TrimRight(base, "/"), hc: hc}
}

func (q requester) do(ctx context.Context, method, path string, body any, header http.Header) (response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return response{}, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.base+path, rd)
	if err != nil {
		return response{}, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := q.hc.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return response{}, err
	}
	return response{Status: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// detail extracts the backend's error message, falling back to the status text.
func (r response) detail() (string, int) {
	var eb domain.ErrorBody
	if json.Unmarshal(r.Body, &eb) == nil {
		if msg := eb.Message(); msg != "" {
			return msg, eb.RetryAfterSeconds
		}
		return http.StatusText(r.Status), eb.RetryAfterSeconds
	}
	return http.StatusText(r.Status), 0
}
