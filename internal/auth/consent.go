package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Scopes requested from the Microsoft identity platform. offline_access is
// what gets us a refresh token.
var scopes = []string{"openid", "offline_access", "Calendars.ReadBasic"}

// NewOAuthConfig builds the oauth2 config for the given app registration.
// tenant is usually "common".
func NewOAuthConfig(clientID, tenant string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: microsoft.AzureADEndpoint(tenant),
		Scopes:   scopes,
	}
}

// startCallbackServer starts a local HTTP server to receive the OAuth
// redirect. It listens on port 8000 (the registered redirect URI), falling
// back to an ephemeral port when 8000 is taken.
func startCallbackServer() (string, <-chan string, <-chan error, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8000")
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to start callback server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://localhost:%d/redirect", port)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code != "" {
			fmt.Fprint(w, "<html><body><h1>Signed in.</h1><p>You can close this window.</p></body></html>")
			codeChan <- code
		} else if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			fmt.Fprintf(w, "<html><body><h1>Sign-in failed</h1><p>%s</p></body></html>", errMsg)
			errorChan <- fmt.Errorf("authorization error: %s (%s)", errMsg, r.URL.Query().Get("error_description"))
		} else {
			fmt.Fprint(w, "<html><body><h1>No authorization code received</h1></body></html>")
			errorChan <- fmt.Errorf("no authorization code received")
		}
		go func() {
			time.Sleep(1 * time.Second)
			server.Shutdown(context.Background())
		}()
	})
	server.Handler = mux

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errorChan <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	return redirectURL, codeChan, errorChan, nil
}

// Consent runs the interactive authorization-code flow: it starts the local
// callback server, prints the URL for the user to visit, waits for the
// redirect, and exchanges the code for a token. The token is not installed
// anywhere; hand it to Vault.SetToken.
func Consent(ctx context.Context, oauthConfig *oauth2.Config, timeout time.Duration) (*oauth2.Token, error) {
	redirectURL, codeChan, errorChan, err := startCallbackServer()
	if err != nil {
		return nil, err
	}

	cfg := *oauthConfig
	cfg.RedirectURL = redirectURL

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	fmt.Printf("Waiting for sign-in on %s\n", redirectURL)
	if redirectURL != "http://localhost:8000/redirect" {
		fmt.Printf("Note: port 8000 was unavailable. Add %s to the app registration's redirect URIs.\n", redirectURL)
	}
	fmt.Println("\nPlease visit the following URL to authorize the application:")
	fmt.Println(authURL)

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, fmt.Errorf("failed to receive authorization code: %w", err)
	case <-time.After(timeout):
		return nil, fmt.Errorf("authorization timeout: no response received within %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	fmt.Println("Authorization successful!")
	return token, nil
}
