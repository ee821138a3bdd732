// Package assistant forwards transcribed questions to the text-generation
// service.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Reply is the service response. Services that answer with plain text get
// it in Answer.
type Reply struct {
	Answer string `json:"answer"`
	// Spoken is true when the service already voiced the answer.
	Spoken bool `json:"spoken"`
}

// Asker sends one question.
type Asker interface {
	Ask(ctx context.Context, question string) (Reply, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assistant HTTP %d: %s", e.Code, e.Body)
}

// Client posts {"question": text} to a single URL. Every call is a single
// attempt bounded by the timeout.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, timeout: timeout, http: &http.Client{}}
}

func (c *Client) URL() string { return c.url }

func (c *Client) Ask(ctx context.Context, question string) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return Reply{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("assistant request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("assistant response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var reply Reply
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &reply); err == nil {
			return reply, nil
		}
	}
	reply.Answer = strings.TrimSpace(string(raw))
	return reply, nil
}

// Ping checks that the service accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
