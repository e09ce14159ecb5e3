package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/you-humble/audioclip/internal/domain"
)

// ingressClient talks to the ingress HTTP API.
type ingressClient struct {
	base string
	http *http.Client
}

func newIngressClient(base string) *ingressClient {
	return &ingressClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ingressClient) submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	var resp domain.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", body, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func (c *ingressClient) status(ctx context.Context, jobID string) (domain.StatusResponse, error) {
	var resp domain.StatusResponse
	err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, &resp)
	return resp, err
}

func (c *ingressClient) cancel(ctx context.Context, jobID string) (domain.StatusResponse, error) {
	var resp domain.StatusResponse
	err := c.do(ctx, http.MethodDelete, "/jobs/"+jobID, nil, &resp)
	return resp, err
}

// download follows a redirect to the object store when the ingress answers
// with one.
func (c *ingressClient) download(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+domain.ArtifactPath(jobID), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apiError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *ingressClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var e domain.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e); err != nil || e.Message == "" {
		return fmt.Errorf("ingress: %s", resp.Status)
	}

	msg := e.Message
	for _, f := range e.Fields {
		msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Message)
	}
	return fmt.Errorf("ingress: %s: %s", resp.Status, msg)
}
