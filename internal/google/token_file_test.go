package google

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenRecord_Token(t *testing.T) {
	tests := []struct {
		name      string
		rec       TokenRecord
		wantErr   bool
		wantValid bool
		wantType  string
	}{
		{
			name:      "authorized user layout",
			rec:       TokenRecord{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour).UTC().Format(time.RFC3339)},
			wantValid: true,
			wantType:  "Bearer",
		},
		{
			name:      "oauth2 token layout",
			rec:       TokenRecord{LegacyAccessToken: "a", TokenType: "bearer"},
			wantValid: true,
			wantType:  "bearer",
		},
		{
			name:     "python naive expiry",
			rec:      TokenRecord{AccessToken: "a", Expiry: "2020-06-01T12:00:00.123456"},
			wantType: "Bearer",
		},
		{
			name:     "refresh token only",
			rec:      TokenRecord{RefreshToken: "r"},
			wantType: "Bearer",
		},
		{
			name:    "empty",
			rec:     TokenRecord{},
			wantErr: true,
		},
		{
			name:    "bad expiry",
			rec:     TokenRecord{AccessToken: "a", Expiry: "tomorrow"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := tt.rec.Token()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, tok.Valid())
			assert.Equal(t, tt.wantType, tok.TokenType)
		})
	}
}

func TestTokenRecord_OAuthConfig(t *testing.T) {
	assert.Nil(t, TokenRecord{AccessToken: "a"}.OAuthConfig())

	conf := TokenRecord{ClientID: "id", ClientSecret: "secret", TokenURI: "http://token.local", LegacyScope: "a b"}.OAuthConfig()
	require.NotNil(t, conf)
	assert.Equal(t, "http://token.local", conf.Endpoint.TokenURL)
	assert.Equal(t, []string{"a", "b"}, conf.Scopes)

	conf = TokenRecord{ClientID: "id"}.OAuthConfig()
	assert.Equal(t, "https://oauth2.googleapis.com/token", conf.Endpoint.TokenURL)
	assert.Equal(t, Scopes, conf.Scopes)
}

func TestWriteTokenFile_Atomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "token.json")

	rec := TokenRecord{ClientID: "c"}.withToken(&oauth2.Token{
		AccessToken:  "first",
		RefreshToken: "refresh",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, WriteTokenFile(path, rec))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := ReadTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "authorized_user", got.Type)
	assert.Equal(t, "first", got.AccessToken)
	assert.Equal(t, "2030-01-02T03:04:05Z", got.Expiry)

	require.NoError(t, WriteTokenFile(path, got.withToken(&oauth2.Token{AccessToken: "second"})))
	got, err = ReadTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestReadTokenFile_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadTokenFile(filepath.Join(dir, "absent.json"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, "{not json")
	_, err = ReadTokenFile(bad)
	assert.ErrorContains(t, err, "failed to parse token file")
}

type sequenceSource struct {
	tokens []*oauth2.Token
	err    error
	calls  int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func TestPersistingTokenSource(t *testing.T) {
	tests := []struct {
		name        string
		record      TokenRecord
		currentRT   string
		refreshedRT string
		wantRT      string
	}{
		{name: "refresh token from the in-memory token", record: TokenRecord{ClientID: "c"}, currentRT: "r", wantRT: "r"},
		{name: "refresh token from the record", record: TokenRecord{ClientID: "c", RefreshToken: "rec"}, wantRT: "rec"},
		{name: "rotated refresh token wins", record: TokenRecord{ClientID: "c", RefreshToken: "rec"}, currentRT: "r", refreshedRT: "rotated", wantRT: "rotated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			expired := &oauth2.Token{AccessToken: "old", RefreshToken: tt.currentRT, Expiry: time.Now().Add(-time.Hour)}
			base := &sequenceSource{tokens: []*oauth2.Token{
				{AccessToken: "new", RefreshToken: tt.refreshedRT, Expiry: time.Now().Add(time.Hour)},
			}}
			src := newPersistingTokenSource(base, path, tt.record, expired)

			tok, err := src.Token()
			require.NoError(t, err)
			assert.Equal(t, "new", tok.AccessToken)

			rec, err := ReadTokenFile(path)
			require.NoError(t, err)
			assert.Equal(t, "new", rec.AccessToken)
			assert.Equal(t, tt.wantRT, rec.RefreshToken)
			assert.Equal(t, "c", rec.ClientID)

			_, err = src.Token()
			require.NoError(t, err)
			assert.Equal(t, 1, base.calls, "valid token served from memory")
		})
	}
}

func TestPersistingTokenSource_PersistFailureKeepsMemory(t *testing.T) {
	// The parent "directory" is a regular file, so the write must fail.
	parent := filepath.Join(t.TempDir(), "file")
	writeFile(t, parent, "x")
	expired := &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)}
	base := &sequenceSource{tokens: []*oauth2.Token{{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}}}
	src := newPersistingTokenSource(base, filepath.Join(parent, "token.json"), TokenRecord{}, expired)

	_, err := src.Token()
	var perr *PersistError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "old", src.current.AccessToken)
}

func TestPersistingTokenSource_RefreshError(t *testing.T) {
	base := &sequenceSource{err: errors.New("invalid_grant")}
	src := newPersistingTokenSource(base, filepath.Join(t.TempDir(), "t.json"), TokenRecord{}, nil)

	_, err := src.Token()
	var rerr *RefreshError
	require.True(t, errors.As(err, &rerr))
	assert.ErrorContains(t, err, "invalid_grant")
}
