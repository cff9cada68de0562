package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reel/internal/config"
	"reel/internal/creds"
	"reel/internal/services"
)

const userAgent = "Reel/0.1.0"

// TokenSource mints server-to-server OAuth tokens per configured account.
// It implements creds.Source.
type TokenSource struct {
	authBase string
	client   *http.Client
	accounts map[string]config.Account
}

// NewTokenSource builds a token source covering every configured account.
func NewTokenSource(cfg *config.Config) *TokenSource {
	accounts := make(map[string]config.Account, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		accounts[account.Name] = account
	}
	timeout := time.Duration(cfg.Source.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TokenSource{
		authBase: strings.TrimRight(cfg.Source.AuthBaseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		accounts: accounts,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenError struct {
	Reason      string `json:"error"`
	Description string `json:"error_description"`
}

// Refresh requests a fresh account-credentials grant for the named account.
func (s *TokenSource) Refresh(ctx context.Context, account string) (creds.Token, error) {
	cfgAccount, ok := s.accounts[account]
	if !ok {
		return creds.Token{}, services.Wrap(services.ErrConfiguration, "zoom", "token",
			fmt.Sprintf("account %q is not configured", account), nil)
	}

	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", cfgAccount.AccountID)

	endpoint := s.authBase + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return creds.Token{}, services.Wrap(services.ErrTransient, "zoom", "token", "build token request", err)
	}
	req.SetBasicAuth(cfgAccount.ClientID, cfgAccount.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return creds.Token{}, services.Wrap(services.ErrTransient, "zoom", "token", "token request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		var apiErr tokenError
		_ = json.Unmarshal(body, &apiErr)
		reason := strings.TrimSpace(apiErr.Reason)
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return creds.Token{}, services.Wrap(services.ErrAuth, "zoom", "token",
			fmt.Sprintf("credentials rejected for account %s (%s)", account, reason), nil)
	default:
		return creds.Token{}, services.Wrap(services.ErrTransient, "zoom", "token",
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil)
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return creds.Token{}, services.Wrap(services.ErrTransient, "zoom", "token", "parse token response", err)
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return creds.Token{}, services.Wrap(services.ErrTransient, "zoom", "token", "token response missing fields", nil)
	}
	return creds.Token{
		Value:     payload.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
