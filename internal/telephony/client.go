package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// restClient is the shared HTTP plumbing for vendor adapters. It shapes
// requests (basic/bearer auth, JSON or form bodies) and reads responses whole;
// adapters own status handling and body decoding.
//
// No timeout is applied here: callers control deadlines via ctx.
type restClient struct {
	hc *http.Client
}

func newRESTClient() *restClient {
	return &restClient{hc: &http.Client{}}
}

type restRequest struct {
	method string
	url    string

	basicUser string
	basicPass string
	bearer    string
	headers   map[string]string

	// At most one of form/jsonBody is set.
	form     url.Values
	jsonBody any
}

// do executes the request and returns status plus the full response body.
// Transport failures come back as errors; non-2xx statuses do not.
func (c *restClient) do(ctx context.Context, r restRequest) (int, []byte, error) {
	var body io.Reader
	contentType := ""
	switch {
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.jsonBody != nil:
		raw, err := json.Marshal(r.jsonBody)
		if err != nil {
			return 0, nil, fmt.Errorf("telephony: marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return 0, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.basicUser != "" || r.basicPass != "" {
		req.SetBasicAuth(r.basicUser, r.basicPass)
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// vendorError extracts a human-readable message from a vendor error body,
// falling back to "<operation> failed: <status>".
func vendorError(operation string, status int, body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Errors  []struct {
			Detail string `json:"detail"`
			Title  string `json:"title"`
		} `json:"errors"`
		ErrorText string `json:"error-code-label"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Error != "":
			return envelope.Error
		case len(envelope.Errors) > 0 && envelope.Errors[0].Detail != "":
			return envelope.Errors[0].Detail
		case len(envelope.Errors) > 0 && envelope.Errors[0].Title != "":
			return envelope.Errors[0].Title
		case envelope.ErrorText != "":
			return envelope.ErrorText
		}
	}
	return fmt.Sprintf("%s failed: %d", operation, status)
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}
