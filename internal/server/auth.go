package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/session"
	"github.com/desertthunder/spotalytics/internal/shared"
	"golang.org/x/oauth2"
)

// StateTokenBytes is the entropy of the random part of an OAuth state.
const StateTokenBytes = 16

// NewState builds an OAuth state of a random token and the local path to return to.
func NewState(next string) (string, error) {
	token, err := shared.GenerateToken(StateTokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return token + ":" + shared.SafeNextURL(next), nil
}

// NextFromState returns the return path carried by state, defaulting to "/".
func NextFromState(state string) string {
	_, next, _ := strings.Cut(state, ":")
	if next = shared.SafeNextURL(next); next == "" {
		return "/"
	}
	return next
}

// callbackOutcome classifies an authorization callback. An empty message means the code may
// be exchanged.
func callbackOutcome(expected, state, code, errParam string) (string, error) {
	switch {
	case errParam != "":
		return fmt.Sprintf(`Failed due to "%s"`, errParam), shared.ErrAuthFailed
	case code != "" && expected != "" && state == expected:
		return "", nil
	case code != "":
		return fmt.Sprintf("State mismatch! Expected %s but got %s", expected, state), shared.ErrStateMismatch
	default:
		return "Failed to receive code from Spotify; please try again", shared.ErrAuthFailed
	}
}

func (a *App) authorize(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())

	state, err := NewState(r.URL.Query().Get("next_url"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	s.State = state
	if err := a.sessions.Save(r.Context(), w, s); err != nil {
		a.fail(w, r, err)
		return
	}

	http.Redirect(w, r, a.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

func (a *App) callback(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	q := r.URL.Query()

	if msg, err := callbackOutcome(s.State, q.Get("state"), q.Get("code"), q.Get("error")); err != nil {
		a.logger.Warn("authorization callback rejected", "error", err, "detail", msg)
		writeDetail(w, http.StatusUnauthorized, msg)
		return
	}

	token, err := a.auth.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	next := NextFromState(s.State)
	s.Tokens = a.auth.SessionTokens(token, s.Tokens)
	s.State = ""
	s.UserID = ""
	if err := a.sessions.Save(r.Context(), w, s); err != nil {
		a.fail(w, r, err)
		return
	}

	a.logger.Info("authorized session", "session", s.ID, "expires", s.Tokens.Expiry)
	http.Redirect(w, r, next, http.StatusTemporaryRedirect)
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	Expiry       time.Time `json:"expiry"`
}

func newTokenResponse(token *oauth2.Token, now time.Time) tokenResponse {
	expiresIn := token.ExpiresIn
	if expiresIn == 0 && !token.Expiry.IsZero() {
		expiresIn = int64(token.Expiry.Sub(now).Round(time.Second) / time.Second)
	}
	return tokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.Type(),
		RefreshToken: token.RefreshToken,
		ExpiresIn:    expiresIn,
		Expiry:       token.Expiry,
	}
}

func (a *App) getAccessToken(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		a.fail(w, r, fmt.Errorf("%w: code is required", shared.ErrMissingArgument))
		return
	}

	token, err := a.auth.Exchange(r.Context(), code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, r, newTokenResponse(token, a.now()))
}

type debugResponse struct {
	AccessToken    *string `json:"access_token"`
	RefreshToken   *string `json:"refresh_token"`
	ExpirationTime *string `json:"expiration_time"`
	Expired        bool    `json:"expired"`
}

func (a *App) debugInfo(t services.Tokens) debugResponse {
	resp := debugResponse{Expired: t.Expired(a.now())}
	if t.AccessToken != "" {
		resp.AccessToken = &t.AccessToken
	}
	if t.RefreshToken != "" {
		resp.RefreshToken = &t.RefreshToken
	}
	if !t.Expiry.IsZero() {
		exp := t.Expiry.In(a.loc).Format(time.RFC3339)
		resp.ExpirationTime = &exp
	}
	return resp
}

func (a *App) debug(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, a.debugInfo(session.FromContext(r.Context()).Tokens))
}
