package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	authEndpoint = "https://accounts.google.com/o/oauth2/v2/auth"
	gmailScope   = "https://www.googleapis.com/auth/gmail.modify"
)

// Authorize runs the one-time installed-app OAuth consent flow for the Gmail
// scope and returns the granted refresh token. It listens on an ephemeral
// localhost port for the browser redirect, prints the consent URL to out, and
// blocks until the round trip completes or ctx is cancelled.
func Authorize(ctx context.Context, clientID, clientSecret string, out io.Writer) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("starting redirect listener: %w", err)
	}
	defer ln.Close()

	redirectURI := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	state := uuid.NewString()

	q := url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {gmailScope},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	fmt.Fprintf(out, "Open this URL in your browser and grant access:\n\n  %s?%s\n\n", authEndpoint, q.Encode())
	fmt.Fprintln(out, "Waiting for the browser redirect...")

	code, err := waitForCode(ctx, ln, state)
	if err != nil {
		return "", err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	return exchangeAuthCode(ctx, client, tokenEndpoint, clientID, clientSecret, code, redirectURI)
}

// waitForCode serves the localhost redirect until Google delivers the
// authorization code (or an error) to the callback path.
func waitForCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		switch {
		case r.URL.Query().Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- result{err: fmt.Errorf("authorization redirect carried an unexpected state")}
		case r.URL.Query().Get("error") != "":
			http.Error(w, "authorization denied", http.StatusBadRequest)
			results <- result{err: fmt.Errorf("authorization denied: %s", r.URL.Query().Get("error"))}
		case r.URL.Query().Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			results <- result{err: fmt.Errorf("authorization redirect carried no code")}
		default:
			fmt.Fprintln(w, "Authorization received. You can close this tab and return to the terminal.")
			results <- result{code: r.URL.Query().Get("code")}
		}
	})}
	go srv.Serve(ln)
	defer srv.Close()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		return res.code, res.err
	}
}

// exchangeAuthCode trades an authorization code for a refresh token at the
// same token endpoint the transport later uses for access-token refresh.
func exchangeAuthCode(ctx context.Context, client *http.Client, tokenURL, clientID, clientSecret, code, redirectURI string) (string, error) {
	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchanging authorization code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("code exchange: unexpected status %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("code exchange returned no refresh token; revoke the app's prior grant and run auth again")
	}
	return tok.RefreshToken, nil
}
