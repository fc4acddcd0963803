package sheets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// OAuthConfig holds the OAuth2 client credentials and the token cache path.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
}

const callbackAddr = ":8080"

func oauthClient(c OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{sheetsapi.SpreadsheetsScope},
	}
}

// GetOrCreateToken returns a cached token, refreshing it when expired, or
// runs the interactive browser flow when no usable token exists.
func GetOrCreateToken(ctx context.Context, c OAuthConfig) (*oauth2.Token, error) {
	if c.TokenFile != "" {
		token, err := LoadToken(c.TokenFile)
		if err == nil {
			return refreshIfNeeded(ctx, c, token)
		}
		slog.Info("no cached token, starting OAuth2 flow", "file", c.TokenFile)
	}
	return AuthorizeInteractive(ctx, c)
}

// AuthorizeInteractive runs the browser OAuth2 consent flow. It serves the
// redirect callback on localhost and blocks until the user completes the
// flow, the context ends, or five minutes pass.
func AuthorizeInteractive(ctx context.Context, c OAuthConfig) (*oauth2.Token, error) {
	oc := oauthClient(c)

	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("could not generate state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("state mismatch in OAuth2 callback")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			_, _ = fmt.Fprint(w, "<html><body><h1>Authentication failed</h1><p>No authorization code received. Close this window and try again.</p></body></html>")
			return
		}
		codeChan <- code
		_, _ = fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})

	server := &http.Server{Addr: callbackAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- fmt.Errorf("could not start callback server: %w", err)
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	slog.Info("Google Sheets authorization required")
	slog.Info("visit this URL to authorize", "url", authURL)

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out after 5 minutes")
	}

	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("could not exchange authorization code: %w", err)
	}

	if c.TokenFile != "" {
		if err := saveToken(c.TokenFile, token); err != nil {
			slog.Warn("could not cache token", "file", c.TokenFile, "error", err)
		} else {
			slog.Info("token cached", "file", c.TokenFile)
		}
	}
	return token, nil
}

// LoadToken reads a cached token.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("could not create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("could not encode token: %w", err)
	}
	return nil
}

func refreshIfNeeded(ctx context.Context, c OAuthConfig, token *oauth2.Token) (*oauth2.Token, error) {
	if token.Valid() {
		return token, nil
	}

	slog.Info("cached token expired, refreshing")
	fresh, err := oauthClient(c).TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("could not refresh token: %w", err)
	}

	if c.TokenFile != "" {
		if err := saveToken(c.TokenFile, fresh); err != nil {
			slog.Warn("could not cache refreshed token", "error", err)
		}
	}
	return fresh, nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
