package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(LoadOptions{Lookup: envMap(nil)})
	require.NoError(t, err)

	dir := DefaultConfigDir()
	assert.Equal(t, "", s.CredentialsConfig)
	assert.Equal(t, filepath.Join(dir, "service_account.json"), s.ServiceAccountPath)
	assert.Equal(t, filepath.Join(dir, "token.json"), s.TokenPath)
	assert.Equal(t, filepath.Join(dir, "credentials.json"), s.CredentialsPath)
	assert.True(t, s.UseDefaultCredentials)
	assert.Equal(t, 5*time.Minute, s.AuthTimeout)
	assert.Equal(t, 60*time.Second, s.RequestTimeout)
	assert.Equal(t, "0.0.0.0:8000", s.Addr())
	assert.False(t, s.IsSet(EnvTokenPath))
}

func TestLoad_Environment(t *testing.T) {
	s, err := Load(LoadOptions{Lookup: envMap(map[string]string{
		EnvCredentialsConfig: "eyJ0eXBlIjoic2VydmljZV9hY2NvdW50In0=",
		EnvTokenPath:         "/tmp/tok.json",
		EnvDelegatedUser:     "owner@example.com",
		EnvUseDefaultCreds:   "false",
		EnvAuthTimeout:       "90",
		EnvRequestTimeout:    "15s",
		EnvRateLimit:         "0",
		EnvHost:              "127.0.0.1",
		EnvPort:              "9000",
	})})
	require.NoError(t, err)

	assert.Equal(t, "eyJ0eXBlIjoic2VydmljZV9hY2NvdW50In0=", s.CredentialsConfig)
	assert.Equal(t, "/tmp/tok.json", s.TokenPath)
	assert.Equal(t, "owner@example.com", s.DelegatedUser)
	assert.False(t, s.UseDefaultCredentials)
	assert.Equal(t, 90*time.Second, s.AuthTimeout)
	assert.Equal(t, 15*time.Second, s.RequestTimeout)
	assert.Equal(t, 0.0, s.RateLimit)
	assert.Equal(t, "127.0.0.1:9000", s.Addr())
	assert.True(t, s.IsSet(EnvTokenPath))
}

func TestLoad_FastMCPFallback(t *testing.T) {
	s, err := Load(LoadOptions{Lookup: envMap(map[string]string{
		"FASTMCP_HOST": "10.0.0.1",
		"FASTMCP_PORT": "8080",
	})})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", s.Addr())

	s, err = Load(LoadOptions{Lookup: envMap(map[string]string{
		"FASTMCP_PORT": "8080",
		EnvPort:        "7000",
	})})
	require.NoError(t, err)
	assert.Equal(t, 7000, s.Port, "PORT wins over FASTMCP_PORT")
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[credentials]
token_path = "/from/toml/token.json"
credentials_path = "/from/toml/credentials.json"
service_account_path = "/from/toml/sa.json"
use_default = false

[server]
port = 8100
`), 0600))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(
		"GMAIL_CREDENTIALS_PATH=/from/dotenv/credentials.json\n"+
			"GMAIL_SERVICE_ACCOUNT_PATH=/from/dotenv/sa.json\n"+
			"UNRELATED=ignored\n"), 0600))

	s, err := Load(LoadOptions{
		ConfigFile: tomlPath,
		EnvFiles:   []string{envPath, filepath.Join(dir, "missing.env")},
		Lookup:     envMap(map[string]string{EnvServiceAccountPath: "/from/env/sa.json"}),
		Overrides:  map[string]string{EnvPort: "8200"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/from/toml/token.json", s.TokenPath)
	assert.Equal(t, "/from/dotenv/credentials.json", s.CredentialsPath)
	assert.Equal(t, "/from/env/sa.json", s.ServiceAccountPath)
	assert.False(t, s.UseDefaultCredentials)
	assert.Equal(t, 8200, s.Port)
	assert.False(t, s.IsSet("UNRELATED"))
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	badKey := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badKey, []byte("[credentials]\nnope = 1\n"), 0600))
	badSyntax := filepath.Join(dir, "syntax.toml")
	require.NoError(t, os.WriteFile(badSyntax, []byte("[credentials\n"), 0600))

	tests := []struct {
		name    string
		opts    LoadOptions
		wantErr string
	}{
		{"missing config file", LoadOptions{ConfigFile: filepath.Join(dir, "none.toml")}, "failed to read config file"},
		{"unknown toml key", LoadOptions{ConfigFile: badKey}, "unknown keys"},
		{"bad toml", LoadOptions{ConfigFile: badSyntax}, "failed to parse config file"},
		{"bad port", LoadOptions{Overrides: map[string]string{EnvPort: "http"}}, "invalid PORT"},
		{"port out of range", LoadOptions{Overrides: map[string]string{EnvPort: "70000"}}, "invalid PORT"},
		{"bad bool", LoadOptions{Overrides: map[string]string{EnvUseDefaultCreds: "maybe"}}, "invalid GMAIL_USE_DEFAULT_CREDENTIALS"},
		{"bad timeout", LoadOptions{Overrides: map[string]string{EnvAuthTimeout: "-1s"}}, "invalid GMAIL_AUTH_TIMEOUT"},
		{"zero seconds", LoadOptions{Overrides: map[string]string{EnvRequestTimeout: "0"}}, "invalid GMAIL_REQUEST_TIMEOUT"},
		{"negative rate", LoadOptions{Overrides: map[string]string{EnvRateLimit: "-2"}}, "invalid GMAIL_RATE_LIMIT"},
		{"zero burst", LoadOptions{Overrides: map[string]string{EnvRateBurst: "0"}}, "invalid GMAIL_RATE_BURST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Lookup = envMap(nil)
			_, err := Load(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
