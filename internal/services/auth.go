package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/spotalytics/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// ExpiryBuffer is subtracted from every token lifetime so a token is refreshed before Spotify rejects it.
const ExpiryBuffer = 30 * time.Second

// Scopes requested during authorization.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserTopRead,
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeUserLibraryRead,
}

// Tokens is the credential set kept in a session.
//
// Expiry already has [ExpiryBuffer] taken off. A zero Expiry never expires.
type Tokens struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiration_time"`
}

// Empty reports whether no token has been obtained yet.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Expired reports whether the access token must be refreshed at now.
func (t Tokens) Expired(now time.Time) bool {
	if t.AccessToken == "" {
		return true
	}
	return !t.Expiry.IsZero() && !now.Before(t.Expiry)
}

// Authenticator drives the authorization-code flow against the Spotify accounts service.
type Authenticator struct {
	config *oauth2.Config
	now    func() time.Time
}

// NewAuthenticator validates the credentials and builds the OAuth2 configuration.
//
// AuthURL and TokenURL in cfg override the public Spotify accounts endpoints.
func NewAuthenticator(cfg shared.SpotifyConfig) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("%w: missing spotify redirect_uri", shared.ErrMissingCredentials)
	}

	endpoint := oauth2.Endpoint{
		AuthURL:   spotifyauth.AuthURL,
		TokenURL:  spotifyauth.TokenURL,
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		now: time.Now,
	}, nil
}

// AuthURL returns the accounts-service URL the user is redirected to.
func (a *Authenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Refresh mints a new access token from a refresh token. When Spotify does not rotate the
// refresh token the old one is kept on the returned token.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	token, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// SessionTokens converts a token response into the session representation.
func (a *Authenticator) SessionTokens(token *oauth2.Token, previous Tokens) Tokens {
	t := Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if t.RefreshToken == "" {
		t.RefreshToken = previous.RefreshToken
	}
	if !token.Expiry.IsZero() {
		t.Expiry = token.Expiry.Add(-ExpiryBuffer)
	} else if secs, ok := token.Extra("expires_in").(float64); ok && secs > 0 {
		t.Expiry = a.now().Add(time.Duration(secs)*time.Second - ExpiryBuffer)
	}
	return t
}

// Client returns an HTTP client that sends the token and refreshes it through the accounts
// service when it expires. onRefresh, if set, receives every new token.
func (a *Authenticator) Client(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) *http.Client {
	source := &refreshableTokenSource{
		source:   a.config.TokenSource(ctx, token),
		callback: onRefresh,
	}
	return oauth2.NewClient(ctx, source)
}

// StaticClient returns an HTTP client that always sends accessToken.
func StaticClient(ctx context.Context, accessToken string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports each distinct token to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	last     string
}

func (s *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if s.callback != nil {
			s.callback(token)
		}
	}
	return token, nil
}

// TokenManager hands out access tokens for a session, refreshing them before they expire.
type TokenManager struct {
	auth *Authenticator
	now  func() time.Time
}

// NewTokenManager creates a [TokenManager] backed by auth.
func NewTokenManager(auth *Authenticator) *TokenManager {
	return &TokenManager{auth: auth, now: time.Now}
}

// AccessToken returns a usable access token for t.
//
// An unexpired token is returned as is. Otherwise the refresh token is spent and the new set is
// returned with changed set, so the caller can persist it. Without a refresh token the error is
// [shared.ErrNotAuthenticated].
func (m *TokenManager) AccessToken(ctx context.Context, t Tokens) (Tokens, bool, error) {
	if !t.Expired(m.now()) {
		return t, false, nil
	}

	if t.RefreshToken == "" {
		return t, false, shared.ErrNotAuthenticated
	}

	token, err := m.auth.Refresh(ctx, t.RefreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrNoRefreshToken) {
			return t, false, shared.ErrNotAuthenticated
		}
		return t, false, err
	}

	return m.auth.SessionTokens(token, t), true, nil
}
