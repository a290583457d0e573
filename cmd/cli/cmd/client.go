package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"postpilot/pkg/api"
)

// PostClient handles API calls to the postpilot controller.
type PostClient struct {
	BaseURL    string
	Secret     string
	HTTPClient *http.Client
}

// NewPostClient creates a new client with the given base URL and secret.
func NewPostClient(baseURL, secret string) *PostClient {
	return &PostClient{
		BaseURL: baseURL,
		Secret:  secret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *PostClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Secret != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Secret))
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CreatePost sends POST /posts to schedule a new post.
func (c *PostClient) CreatePost(req api.CreatePostRequest) (*api.CreatePostResponse, error) {
	var result api.CreatePostResponse
	if err := c.do(http.MethodPost, "/posts", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPost sends GET /posts/{id}.
func (c *PostClient) GetPost(postID string) (*api.PostResponse, error) {
	var result api.PostResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/posts/%s", postID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeletePost sends DELETE /posts/{id} to cancel a scheduled post.
func (c *PostClient) DeletePost(postID string) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/posts/%s", postID), nil, nil)
}

// Sweep sends POST /internal/sweep to run a reconciliation pass now.
func (c *PostClient) Sweep() (*api.SweepResponse, error) {
	var result api.SweepResponse
	if err := c.do(http.MethodPost, "/internal/sweep", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueueStats sends GET /internal/queue/stats.
func (c *PostClient) QueueStats() (*api.QueueStatsResponse, error) {
	var result api.QueueStatsResponse
	if err := c.do(http.MethodGet, "/internal/queue/stats", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
