// Package publisher wraps the Google Business Profile publish API.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"postpilot/internal/store"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultAPIBase  = "https://mybusiness.googleapis.com/v4"
)

// Config holds the OAuth client credentials and the account posts are
// published under.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string

	// TokenURL and APIBase override the Google endpoints, used by tests.
	TokenURL string
	APIBase  string
}

// Client publishes posts to the Business Profile API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a publisher client.
func New(config Config) *Client {
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.APIBase == "" {
		config.APIBase = defaultAPIBase
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PublishError is a non-2xx response from the publish API.
type PublishError struct {
	StatusCode int
	Body       string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish API returned %d: %s", e.StatusCode, e.Body)
}

// RefreshAccessToken exchanges a stored refresh token for a fresh access token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh returned %d: %s", resp.StatusCode, body)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	return result.AccessToken, nil
}

// localPost is the wire payload for the localPosts endpoint.
type localPost struct {
	LanguageCode string        `json:"languageCode"`
	Summary      string        `json:"summary"`
	Media        []mediaItem   `json:"media,omitempty"`
	CallToAction *callToAction `json:"callToAction,omitempty"`
}

type mediaItem struct {
	MediaFormat string `json:"mediaFormat"`
	SourceURL   string `json:"sourceUrl"`
}

type callToAction struct {
	ActionType string `json:"actionType"`
	URL        string `json:"url,omitempty"`
}

// BuildPayload maps a post's content, image, and call-to-action to the wire
// format. The CALL action carries no URL: the Business Profile resolves the
// phone number from the location's own profile.
func BuildPayload(post *store.Post) ([]byte, error) {
	lp := localPost{
		LanguageCode: "en",
		Summary:      post.Content,
	}

	if post.ImageURL != nil && *post.ImageURL != "" {
		lp.Media = []mediaItem{{MediaFormat: "PHOTO", SourceURL: *post.ImageURL}}
	}

	if post.CTAType != nil {
		cta := &callToAction{ActionType: string(*post.CTAType)}
		if *post.CTAType != store.CTACall && post.CTAURL != nil {
			cta.URL = *post.CTAURL
		}
		lp.CallToAction = cta
	}

	return json.Marshal(lp)
}

// Publish posts the payload to the location's localPosts collection.
// A non-2xx response is returned as *PublishError.
func (c *Client) Publish(ctx context.Context, gbpLocationID string, payload []byte, accessToken string) error {
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/localPosts",
		c.config.APIBase, c.config.AccountID, gbpLocationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &PublishError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}
