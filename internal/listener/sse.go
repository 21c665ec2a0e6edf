package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"order-sync/internal/domain"
)

// SSETransport reads the notification hub's event stream
// (GET {base}/notifications/stream/{order_id}). The server may change the
// reconnect delay with a "retry:" field.
type SSETransport struct {
	base   string
	client *http.Client
	retry  time.Duration
}

// NewSSETransport uses retry until the server announces its own delay.
// The client must not carry an overall timeout.
func NewSSETransport(baseURL string, client *http.Client, retry time.Duration) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	if retry <= 0 {
		retry = 3 * time.Second
	}
	return &SSETransport{base: strings.TrimRight(baseURL, "/"), client: client, retry: retry}
}

func (t *SSETransport) Name() string { return "sse" }

func (t *SSETransport) Run(ctx context.Context, orderID string, out chan<- Frame) error {
	delay := t.retry
	for {
		if !emit(ctx, out, stateFrame(domain.Connecting)) {
			return nil
		}
		err := t.stream(ctx, orderID, out, &delay)
		if ctx.Err() != nil {
			return nil
		}
		if !emit(ctx, out, backoffFrame(err, delay)) {
			return nil
		}
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

var errStreamClosed = errors.New("stream closed by server")

// stream runs one connection until it fails or ends.
func (t *SSETransport) stream(ctx context.Context, orderID string, out chan<- Frame, delay *time.Duration) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.base+"/notifications/stream/"+url.PathEscape(orderID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
	}
	if !emit(ctx, out, stateFrame(domain.Connected)) {
		return ctx.Err()
	}

	var (
		event string
		data  strings.Builder
	)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				switch event {
				case "", "order_update":
					if !emit(ctx, out, Frame{Payload: []byte(data.String())}) {
						return ctx.Err()
					}
				case "error":
					return fmt.Errorf("stream: server error event: %s", data.String())
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event = value
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			case "retry":
				if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
					*delay = time.Duration(ms) * time.Millisecond
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errStreamClosed
}
