package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

const authorizationTimeout = 5 * time.Minute

// TokenStore is an interface for saving and loading OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// TokenFile is a TokenStore that keeps the token as JSON at the given path.
type TokenFile string

// LoadToken returns nil, nil before the first authorization.
func (f TokenFile) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(string(f))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%s: %w", f, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%s: no access or refresh token", f)
	}
	return &token, nil
}

// SaveToken replaces the file through a rename so a crash never leaves a
// truncated token behind. The file is only readable by the owner.
func (f TokenFile) SaveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(string(f))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), string(f))
}

// Options tune the interactive flow. The zero value prints to stderr and
// logs with slog.Default.
type Options struct {
	Out    io.Writer
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Out == nil {
		o.Out = os.Stderr
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Logger = o.Logger.With(slog.String("component", "auth"))
	return o
}

// NewOAuthConfig returns the Google OAuth config for read/write calendar access.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarScope},
	}
}

// autoSaveTokenSource wraps an oauth2.TokenSource and automatically saves refreshed tokens.
type autoSaveTokenSource struct {
	mu         sync.Mutex
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
	log        *slog.Logger
}

// Token implements oauth2.TokenSource and saves the token if it was refreshed.
func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Access tokens differ only after a refresh
	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.log.Debug("saved refreshed token", slog.Time("expiry", token.Expiry))
		a.lastToken = token
	}

	return token, nil
}

// startLocalServer starts a local HTTP server to receive the OAuth callback.
// Returns the redirect URL, a channel for the authorization code, and a channel for errors.
// Uses port 8080 by default, or a random port if 8080 is unavailable.
func startLocalServer(log *slog.Logger) (string, <-chan string, <-chan error, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}

	var once sync.Once
	deliver := func(code string, err error) {
		once.Do(func() {
			if err != nil {
				errorChan <- err
				return
			}
			codeChan <- code
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("code") != "":
			fmt.Fprint(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			deliver(query.Get("code"), nil)
		case query.Get("error") != "":
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", query.Get("error"))
			deliver("", fmt.Errorf("authorization error: %s", query.Get("error")))
		default:
			fmt.Fprint(w, "<html><body><h1>No authorization code received</h1></body></html>")
			deliver("", fmt.Errorf("no authorization code received"))
		}
		go func() {
			time.Sleep(1 * time.Second)
			if err := server.Shutdown(context.Background()); err != nil {
				log.Warn("callback server shutdown failed", slog.String("error", err.Error()))
			}
		}()
	})
	server.Handler = mux

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			deliver("", fmt.Errorf("server error: %w", err))
		}
	}()

	return redirectURL, codeChan, errorChan, nil
}

// GetAuthenticatedClient returns an authenticated HTTP client using OAuth 2.0.
// If no token exists, it runs the browser flow against a loopback callback server.
func GetAuthenticatedClient(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, opts Options) (*http.Client, error) {
	opts = opts.withDefaults()

	return authenticate(ctx, oauthConfig, tokenStore, opts, func() (string, error) {
		redirectURL, codeChan, errorChan, err := startLocalServer(opts.Logger)
		if err != nil {
			return "", err
		}
		oauthConfig.RedirectURL = redirectURL

		authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		opts.Logger.Info("waiting for OAuth callback", slog.String("redirect_url", redirectURL))
		if redirectURL != "http://127.0.0.1:8080" {
			fmt.Fprintf(opts.Out, "Note: Port 8080 was unavailable. Make sure to add %s to your authorized redirect URIs in Google Cloud Console.\n", redirectURL)
		}
		fmt.Fprintln(opts.Out, "\nPlease visit the following URL to authorize the application:")
		fmt.Fprintln(opts.Out, authURL)
		fmt.Fprintln(opts.Out, "\nWaiting for authorization...")

		select {
		case code := <-codeChan:
			return code, nil
		case err := <-errorChan:
			return "", fmt.Errorf("failed to receive authorization code: %w", err)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(authorizationTimeout):
			return "", fmt.Errorf("authorization timeout: no response received within %s", authorizationTimeout)
		}
	})
}

// GetAuthenticatedClientWithReader is GetAuthenticatedClient for headless
// runs: the user pastes the authorization code into reader.
func GetAuthenticatedClientWithReader(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, reader io.Reader, opts Options) (*http.Client, error) {
	opts = opts.withDefaults()

	return authenticate(ctx, oauthConfig, tokenStore, opts, func() (string, error) {
		authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		fmt.Fprintln(opts.Out, "Please visit the following URL to authorize the application:")
		fmt.Fprintln(opts.Out, authURL)
		fmt.Fprint(opts.Out, "Enter the authorization code: ")

		var code string
		if _, err := fmt.Fscanln(reader, &code); err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		return code, nil
	})
}

func authenticate(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, opts Options, obtainCode func() (string, error)) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	// No token yet: first run
	if token == nil {
		code, err := obtainCode()
		if err != nil {
			return nil, err
		}
		if code == "" {
			return nil, fmt.Errorf("no authorization code received")
		}

		token, err = oauthConfig.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}

		if err := tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
		opts.Logger.Info("authorization successful")
	}

	autoSaveSource := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, oauthConfig.TokenSource(ctx, token)),
		tokenStore: tokenStore,
		lastToken:  token,
		log:        opts.Logger,
	}

	return oauth2.NewClient(ctx, autoSaveSource), nil
}
