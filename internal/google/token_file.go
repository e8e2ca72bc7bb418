package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenRecord is the on-disk token format. It matches Google's
// authorized_user layout and also accepts oauth2.Token field names.
type TokenRecord struct {
	Type         string   `json:"type,omitempty"`
	AccessToken  string   `json:"token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`

	// Accepted on read only.
	LegacyAccessToken string `json:"access_token,omitempty"`
	LegacyScope       string `json:"scope,omitempty"`
}

const authorizedUserType = "authorized_user"

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Token converts the record into an oauth2.Token.
func (r TokenRecord) Token() (*oauth2.Token, error) {
	access := r.AccessToken
	if access == "" {
		access = r.LegacyAccessToken
	}
	if access == "" && r.RefreshToken == "" {
		return nil, errors.New("token file holds neither an access token nor a refresh token")
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}

	if r.Expiry != "" {
		expiry, err := parseExpiry(r.Expiry)
		if err != nil {
			return nil, err
		}
		tok.Expiry = expiry
	}
	if access == "" {
		// Only a refresh token: force a refresh on first use.
		tok.Expiry = time.Unix(1, 0)
	}
	return tok, nil
}

// OAuthConfig builds the refresh configuration stored alongside the token.
// It returns nil when the record carries no client id.
func (r TokenRecord) OAuthConfig() *oauth2.Config {
	if r.ClientID == "" {
		return nil
	}
	endpoint := google.Endpoint
	if r.TokenURI != "" {
		endpoint.TokenURL = r.TokenURI
	}
	return &oauth2.Config{
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       r.scopes(),
	}
}

func (r TokenRecord) scopes() []string {
	if len(r.Scopes) > 0 {
		return r.Scopes
	}
	if r.LegacyScope != "" {
		return strings.Fields(r.LegacyScope)
	}
	return Scopes
}

// withToken returns a copy of r carrying tok. An empty refresh token keeps
// the previous one.
func (r TokenRecord) withToken(tok *oauth2.Token) TokenRecord {
	out := r
	out.Type = authorizedUserType
	out.AccessToken = tok.AccessToken
	out.LegacyAccessToken = ""
	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		out.TokenType = tok.TokenType
	}
	out.Scopes = r.scopes()
	out.LegacyScope = ""
	out.Expiry = ""
	if !tok.Expiry.IsZero() {
		out.Expiry = tok.Expiry.UTC().Format(time.RFC3339)
	}
	return out
}

// recordForConfig starts a record for tokens minted with conf.
func recordForConfig(conf *oauth2.Config) TokenRecord {
	return TokenRecord{
		Type:         authorizedUserType,
		TokenURI:     conf.Endpoint.TokenURL,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		Scopes:       conf.Scopes,
	}
}

func parseExpiry(s string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid token expiry %q", s)
}

// ReadTokenFile loads a token record from path.
func ReadTokenFile(path string) (TokenRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TokenRecord{}, err
	}
	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TokenRecord{}, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	return rec, nil
}

// WriteTokenFile atomically replaces path with rec: it writes a temporary
// file in the same directory, syncs it, then renames it over the target.
func WriteTokenFile(path string, rec TokenRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		cleanup()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// persistingTokenSource writes every newly minted token to disk before
// handing it out, so the file and memory never disagree.
type persistingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	path    string
	record  TokenRecord
	current *oauth2.Token
}

func newPersistingTokenSource(base oauth2.TokenSource, path string, rec TokenRecord, current *oauth2.Token) *persistingTokenSource {
	return &persistingTokenSource{base: base, path: path, record: rec, current: current}
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.Valid() {
		return p.current, nil
	}

	tok, err := p.base.Token()
	if err != nil {
		return nil, &RefreshError{Err: err}
	}

	if p.current == nil || tok.AccessToken != p.current.AccessToken {
		rec := p.record
		if rec.RefreshToken == "" && p.current != nil {
			rec.RefreshToken = p.current.RefreshToken
		}
		next := rec.withToken(tok)
		if err := WriteTokenFile(p.path, next); err != nil {
			return nil, &PersistError{Path: p.path, Err: err}
		}
		p.record = next
	}
	p.current = tok
	return tok, nil
}

// RefreshError reports a failed token refresh.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string { return "failed to refresh token: " + e.Err.Error() }
func (e *RefreshError) Unwrap() error { return e.Err }

// PersistError reports a token that could not be written to disk.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist token to %s: %v", e.Path, e.Err)
}
func (e *PersistError) Unwrap() error { return e.Err }
