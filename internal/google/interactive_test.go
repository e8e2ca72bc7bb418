package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// promptCapture hands the consent URL written by the flow to the test.
type promptCapture chan string

var urlPattern = regexp.MustCompile(`https?://\S+`)

func (p promptCapture) Write(b []byte) (int, error) {
	if m := urlPattern.Find(b); m != nil {
		p <- string(m)
	}
	return len(b), nil
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: tokenURL,
		},
		Scopes: Scopes,
	}
}

type flowResult struct {
	tok *oauth2.Token
	err error
}

func startFlow(t *testing.T, conf *oauth2.Config, timeout time.Duration) (*url.URL, <-chan flowResult) {
	t.Helper()
	prompt := make(promptCapture, 1)
	done := make(chan flowResult, 1)
	go func() {
		tok, err := AuthorizeInteractive(context.Background(), conf, timeout, prompt)
		done <- flowResult{tok, err}
	}()

	select {
	case raw := <-prompt:
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u, done
	case res := <-done:
		t.Fatalf("flow ended before printing a URL: %v", res.err)
	case <-time.After(5 * time.Second):
		t.Fatal("no consent URL printed")
	}
	return nil, nil
}

func TestAuthorizeInteractive_Success(t *testing.T) {
	var gotVerifier string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		gotVerifier = r.Form.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access", "refresh_token": "refresh", "token_type": "Bearer", "expires_in": 3600,
		})
	}))
	defer tokenSrv.Close()

	authURL, done := startFlow(t, testOAuthConfig(tokenSrv.URL), 5*time.Second)
	q := authURL.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	redirect := q.Get("redirect_uri")
	assert.Regexp(t, `^http://127\.0\.0\.1:\d+/$`, redirect)

	resp, err := http.Get(redirect + "?state=" + url.QueryEscape(q.Get("state")) + "&code=the-code")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "access", res.tok.AccessToken)
	assert.Equal(t, "refresh", res.tok.RefreshToken)
	assert.NotEmpty(t, gotVerifier)

	// The callback listener is gone once the call returns.
	_, err = http.Get(redirect)
	assert.Error(t, err)
}

func TestAuthorizeInteractive_ConsentDenied(t *testing.T) {
	authURL, done := startFlow(t, testOAuthConfig("http://127.0.0.1:1/token"), 5*time.Second)
	q := authURL.Query()

	resp, err := http.Get(q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state")) + "&error=access_denied")
	require.NoError(t, err)
	_ = resp.Body.Close()

	res := <-done
	assert.ErrorIs(t, res.err, ErrConsentDenied)
}

func TestAuthorizeInteractive_StateMismatch(t *testing.T) {
	authURL, done := startFlow(t, testOAuthConfig("http://127.0.0.1:1/token"), 5*time.Second)

	resp, err := http.Get(authURL.Query().Get("redirect_uri") + "?state=forged&code=x")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	res := <-done
	assert.ErrorContains(t, res.err, "state mismatch")
}

func TestAuthorizeInteractive_Timeout(t *testing.T) {
	_, done := startFlow(t, testOAuthConfig("http://127.0.0.1:1/token"), 50*time.Millisecond)

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, ErrAuthorizationTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("flow did not time out")
	}
}

func TestAuthorizeInteractive_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AuthorizeInteractive(ctx, testOAuthConfig("http://127.0.0.1:1/token"), time.Minute, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
