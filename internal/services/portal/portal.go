// Package portal notifies the media portal that the library changed so it can
// rescan and surface freshly published recordings.
package portal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reel/internal/config"
	"reel/internal/services"
)

// Service triggers a portal library refresh after a publish.
type Service interface {
	Refresh(ctx context.Context) error
	Enabled() bool
}

// HTTPDoer describes the HTTP client used by the portal service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type noopService struct{}

func (noopService) Refresh(context.Context) error { return nil }
func (noopService) Enabled() bool                 { return false }

type httpService struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewService returns a portal service. When no portal URL is configured the
// returned service is a no-op and publishes succeed without a refresh.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Publish.PortalURL), "/")
	if baseURL == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Publish.PortalTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpService{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.Publish.PortalAPIKey),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewHTTPService constructs an HTTP-backed portal service with an injected client.
func NewHTTPService(baseURL, apiKey string, client HTTPDoer) Service {
	return &httpService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

func (s *httpService) Enabled() bool { return true }

func (s *httpService) Refresh(ctx context.Context) error {
	refreshURL := fmt.Sprintf("%s/library/refresh", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "portal", "build refresh request", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "portal", "refresh request failed", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "publish", "portal", "portal api key rejected", nil)
	default:
		return services.Wrap(services.ErrTransient, "publish", "portal",
			fmt.Sprintf("portal refresh returned %d", resp.StatusCode), nil)
	}
}
