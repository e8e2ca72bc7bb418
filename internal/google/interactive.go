package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrConsentDenied is returned when the user rejects the consent screen.
var ErrConsentDenied = errors.New("authorization was denied by the user")

// ErrAuthorizationTimeout is returned when no callback arrives in time.
var ErrAuthorizationTimeout = errors.New("timed out waiting for authorization")

// AuthorizeInteractive runs the OAuth consent flow for conf and returns the
// exchanged token.
//
// It listens on an ephemeral loopback port for the redirect, writes the
// consent URL to prompt, and blocks until the callback arrives, ctx is
// cancelled, or timeout elapses. The listener is closed before returning.
func AuthorizeInteractive(ctx context.Context, conf *oauth2.Config, timeout time.Duration, prompt io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}

	cfg := *conf
	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)
	deliver := func(cb callback) {
		select {
		case results <- cb:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(callback{err: errors.New("authorization callback state mismatch")})
			return
		}
		if e := q.Get("error"); e != "" {
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>%s</p></body></html>", html.EscapeString(e))
			if e == "access_denied" {
				deliver(callback{err: ErrConsentDenied})
			} else {
				deliver(callback{err: fmt.Errorf("authorization failed: %s", e)})
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			deliver(callback{err: errors.New("authorization callback carried no code")})
			return
		}
		fmt.Fprint(w, "<html><body><h1>Authorization complete</h1><p>You can close this window.</p></body></html>")
		deliver(callback{code: code})
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-serveErr
	}()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier))
	if prompt != nil {
		fmt.Fprintf(prompt, "Open this URL in your browser to authorize Gmail access:\n\n%s\n\n", authURL)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cb callback
	select {
	case cb = <-results:
	case <-waitCtx.Done():
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrAuthorizationTimeout
		}
		return nil, waitCtx.Err()
	}
	if cb.err != nil {
		return nil, cb.err
	}

	tok, err := cfg.Exchange(waitCtx, cb.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}
