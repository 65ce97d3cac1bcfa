package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/shared"
	"golang.org/x/oauth2"
)

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the single authorization callback of a CLI login.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	auth        *services.Authenticator
	state       string
	path        string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a new OAuth handler serving path and expecting state.
// The state token should be cryptographically random for CSRF protection.
func NewOAuthHandler(auth *services.Authenticator, state, path string) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		auth:       auth,
		state:      state,
		path:       path,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the callback the same way the web service does, exchanges the authorization code for
// tokens, and sends the result through the result channel.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != h.path {
		http.NotFound(w, r)
		return
	}

	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Callback already processed")
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if msg, err := callbackOutcome(h.state, q.Get("state"), q.Get("code"), q.Get("error")); err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("%w: %s", err, msg)})
		writeDetail(w, http.StatusUnauthorized, msg)
		return
	}

	token, err := h.auth.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.Send(OAuthResult{err: err})
		writeError(w, err)
		return
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

// ListenRedirect opens a listener on the host of a loopback redirect URI and returns it with the
// callback path, "/" when the URI has none.
func ListenRedirect(redirectURI string) (net.Listener, string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid redirect_uri %q: %v", shared.ErrInvalidConfig, redirectURI, err)
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("%w: redirect_uri %q has no host", shared.ErrInvalidConfig, redirectURI)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}

	ln, err := net.Listen("tcp", host)
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen for the OAuth callback on %s: %w", host, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return ln, path, nil
}

// Authorize runs a one-shot authorization-code flow for the CLI.
//
// It serves the callback on ln, hands the authorize URL to open (typically a browser launcher;
// failures are logged so the user can copy the URL), and waits for the callback or ctx.
func Authorize(ctx context.Context, auth *services.Authenticator, ln net.Listener, path string, open func(string) error, logger *log.Logger) (*oauth2.Token, error) {
	state, err := shared.GenerateToken(StateTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	handler := NewOAuthHandler(auth, state, path)
	router := NewBasicRouter()
	router.Use(Recovery(logger))
	router.Handler(handler)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("OAuth callback server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := auth.AuthURL(state)
	logger.Info("waiting for Spotify authorization", "url", authURL)
	if open != nil {
		if err := open(authURL); err != nil {
			logger.Warn("could not open browser; open the URL manually", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return nil, err
		}
		return result.Token, nil
	}
}
