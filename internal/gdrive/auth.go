package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"

	"github.com/ysaito/expense-filer/internal/expense"
)

// Scopes required for the whole workflow: listing/copying/uploading files
// and writing spreadsheet values.
func Scopes() []string {
	return []string{drive.DriveScope, sheets.SpreadsheetsScope}
}

// Connector performs the installed-app OAuth flow and builds the backend
// client. The interactive browser step only runs when the token cache has
// no usable token for the scope set.
type Connector struct {
	credentialsPath string
	tokens          *TokenStore
}

// NewConnector creates a connector using the OAuth client credentials file
// downloaded from the Google Cloud console.
func NewConnector(credentialsPath string, tokens *TokenStore) *Connector {
	return &Connector{credentialsPath: credentialsPath, tokens: tokens}
}

// Connect implements expense.Connector.
func (c *Connector) Connect(ctx context.Context) (oauth2.TokenSource, expense.Backend, error) {
	creds, err := os.ReadFile(c.credentialsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(creds, Scopes()...)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing credentials: %w", err)
	}

	token, err := c.tokens.Load(Scopes())
	if err != nil {
		return nil, nil, err
	}
	if token == nil {
		slog.Info("no cached token, starting interactive authorization")
		token, err = authorize(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("authorizing: %w", err)
		}
		if err := c.tokens.Save(Scopes(), token); err != nil {
			return nil, nil, err
		}
	}

	source := &persistingSource{
		src:    oauth2.ReuseTokenSource(token, cfg.TokenSource(ctx, token)),
		store:  c.tokens,
		scopes: Scopes(),
		last:   token.AccessToken,
	}

	backend, err := NewClient(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	return source, backend, nil
}

// authorize runs the loopback-redirect flow: open the consent URL in a
// browser, catch the redirect on a local listener, exchange the code.
func authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting redirect listener: %w", err)
	}
	defer listener.Close()

	cfg.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr())
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("state mismatch in redirect")}
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("redirect carried no code")}
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this tab.")
		results <- callback{code: code}
	})}
	go server.Serve(listener)
	defer server.Close()

	if err := browser.OpenURL(authURL); err != nil {
		// No browser available; the user can still follow the URL by hand.
		slog.Warn("opening browser failed", "error", err)
		fmt.Fprintf(os.Stderr, "Open this URL to authorize:\n%s\n", authURL)
	}

	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		token, err := cfg.Exchange(ctx, r.code)
		if err != nil {
			return nil, fmt.Errorf("exchanging code: %w", err)
		}
		return token, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
