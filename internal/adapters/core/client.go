// Package core provides HTTP client for FitStack Core communication.
package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Client implements MemberDirectory and ActivationNotifier interfaces.
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates a new FitStack Core client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(timeout)
	httpClient.SetHeader("X-Internal-API-Key", apiKey)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// MemberExists asks Core whether the member is known.
// GET /api/v1/internal/members/:id/
func (c *Client) MemberExists(ctx context.Context, memberID uuid.UUID) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/internal/members/%s/", c.baseURL, memberID)

	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return false, fmt.Errorf("check member %s in core: %w", memberID, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check member %s in core: status %d", memberID, resp.StatusCode())
	}
}

// NotifyMembershipActivated tells Core a paid membership is live.
// POST /api/v1/memberships/activated/
func (c *Client) NotifyMembershipActivated(ctx context.Context, evt domain.MembershipActivated) error {
	url := fmt.Sprintf("%s/api/v1/memberships/activated/", c.baseURL)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(evt).
		Post(url)
	if err != nil {
		return fmt.Errorf("notify core: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("core returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
