// Package config builds the immutable settings snapshot gmail-mcp runs with.
//
// Values are layered, lowest precedence first: built-in defaults, an optional
// TOML file, dotenv files, the process environment, then explicit overrides
// from command-line flags. The snapshot is built once at startup and passed
// explicitly to the components that need it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// AppName names the per-user configuration directory.
const AppName = "gmail-mcp"

// Recognized setting names. They double as environment variable names.
const (
	EnvCredentialsConfig   = "GMAIL_CREDENTIALS_CONFIG"
	EnvServiceAccountPath  = "GMAIL_SERVICE_ACCOUNT_PATH"
	EnvDelegatedUser       = "GMAIL_DELEGATED_USER"
	EnvTokenPath           = "GMAIL_TOKEN_PATH"
	EnvCredentialsPath     = "GMAIL_CREDENTIALS_PATH"
	EnvUseDefaultCreds     = "GMAIL_USE_DEFAULT_CREDENTIALS"
	EnvAuthTimeout         = "GMAIL_AUTH_TIMEOUT"
	EnvRequestTimeout      = "GMAIL_REQUEST_TIMEOUT"
	EnvRateLimit           = "GMAIL_RATE_LIMIT"
	EnvRateBurst           = "GMAIL_RATE_BURST"
	EnvHost                = "HOST"
	EnvPort                = "PORT"
	envFastMCPHost         = "FASTMCP_HOST"
	envFastMCPPort         = "FASTMCP_PORT"
	defaultHost            = "0.0.0.0"
	defaultPort            = 8000
	defaultAuthTimeout     = 5 * time.Minute
	defaultRequestTimeout  = 60 * time.Second
	defaultRateLimit       = 25.0
	defaultRateBurst       = 50
	serviceAccountFileName = "service_account.json"
	tokenFileName          = "token.json"
	credentialsFileName    = "credentials.json"
)

// tomlKeys maps dotted TOML keys onto setting names.
var tomlKeys = map[string]string{
	"credentials.config":               EnvCredentialsConfig,
	"credentials.service_account_path": EnvServiceAccountPath,
	"credentials.delegated_user":       EnvDelegatedUser,
	"credentials.token_path":           EnvTokenPath,
	"credentials.credentials_path":     EnvCredentialsPath,
	"credentials.use_default":          EnvUseDefaultCreds,
	"credentials.auth_timeout":         EnvAuthTimeout,
	"gmail.request_timeout":            EnvRequestTimeout,
	"gmail.rate_limit":                 EnvRateLimit,
	"gmail.rate_burst":                 EnvRateBurst,
	"server.host":                      EnvHost,
	"server.port":                      EnvPort,
}

// knownNames lists every setting read from dotenv files or the environment.
var knownNames = []string{
	EnvCredentialsConfig, EnvServiceAccountPath, EnvDelegatedUser, EnvTokenPath,
	EnvCredentialsPath, EnvUseDefaultCreds, EnvAuthTimeout, EnvRequestTimeout,
	EnvRateLimit, EnvRateBurst, EnvHost, EnvPort, envFastMCPHost, envFastMCPPort,
}

// Settings is the resolved configuration snapshot.
//
// Settings is a value type. Nothing mutates it after Load returns.
type Settings struct {
	// CredentialsConfig is a base64-encoded service account key.
	CredentialsConfig  string
	ServiceAccountPath string
	// DelegatedUser is the mailbox a service account impersonates.
	DelegatedUser   string
	TokenPath       string
	CredentialsPath string
	// UseDefaultCredentials enables platform default credential discovery.
	UseDefaultCredentials bool
	AuthTimeout           time.Duration
	RequestTimeout        time.Duration
	RateLimit             float64
	RateBurst             int
	Host                  string
	Port                  int

	// explicit records which settings came from a source other than the defaults.
	explicit map[string]bool
}

// IsSet reports whether name was provided by a file, the environment or a flag.
func (s Settings) IsSet(name string) bool {
	return s.explicit[name]
}

// Addr returns the listen address for network transports.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadOptions select the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an optional TOML file. A missing file is an error.
	ConfigFile string
	// EnvFiles are dotenv files. Missing files are skipped.
	EnvFiles []string
	// Lookup reads the environment. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
	// Overrides take precedence over every other source.
	Overrides map[string]string
}

// Load builds a Settings snapshot from the configured sources.
func Load(opts LoadOptions) (Settings, error) {
	values := make(map[string]string)

	if opts.ConfigFile != "" {
		fileValues, err := readTOML(opts.ConfigFile)
		if err != nil {
			return Settings{}, err
		}
		merge(values, fileValues)
	}

	for _, path := range opts.EnvFiles {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		envValues, err := godotenv.Read(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		merge(values, pick(envValues))
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, name := range knownNames {
		if v, ok := lookup(name); ok && v != "" {
			values[name] = v
		}
	}

	merge(values, opts.Overrides)

	return fromValues(values)
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		if v != "" {
			dst[k] = v
		}
	}
}

func pick(values map[string]string) map[string]string {
	out := make(map[string]string)
	for _, name := range knownNames {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

func readTOML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	flat := make(map[string]any)
	flatten(doc, "", flat)

	out := make(map[string]string)
	var unknown []string
	for key, value := range flat {
		name, ok := tomlKeys[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		out[name] = fmt.Sprint(value)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(unknown, ", "))
	}
	return out, nil
}

func flatten(m map[string]any, prefix string, out map[string]any) {
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(nested, full, out)
			continue
		}
		out[full] = value
	}
}

// DefaultConfigDir is the per-user directory holding credential files.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

func fromValues(values map[string]string) (Settings, error) {
	dir := DefaultConfigDir()
	s := Settings{
		CredentialsConfig:     values[EnvCredentialsConfig],
		ServiceAccountPath:    valueOr(values, EnvServiceAccountPath, filepath.Join(dir, serviceAccountFileName)),
		DelegatedUser:         values[EnvDelegatedUser],
		TokenPath:             valueOr(values, EnvTokenPath, filepath.Join(dir, tokenFileName)),
		CredentialsPath:       valueOr(values, EnvCredentialsPath, filepath.Join(dir, credentialsFileName)),
		UseDefaultCredentials: true,
		AuthTimeout:           defaultAuthTimeout,
		RequestTimeout:        defaultRequestTimeout,
		RateLimit:             defaultRateLimit,
		RateBurst:             defaultRateBurst,
		Host:                  defaultHost,
		Port:                  defaultPort,
		explicit:              make(map[string]bool),
	}

	for name := range values {
		s.explicit[name] = true
	}

	if v, ok := values[EnvHost]; ok {
		s.Host = v
	} else if v, ok := values[envFastMCPHost]; ok {
		s.Host = v
		s.explicit[EnvHost] = true
	}

	port, hasPort := values[EnvPort]
	if !hasPort {
		port, hasPort = values[envFastMCPPort]
		s.explicit[EnvPort] = hasPort
	}
	if hasPort {
		p, err := strconv.Atoi(port)
		if err != nil || p < 0 || p > 65535 {
			return Settings{}, fmt.Errorf("invalid %s %q: must be a port number", EnvPort, port)
		}
		s.Port = p
	}

	if v, ok := values[EnvUseDefaultCreds]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s %q: %w", EnvUseDefaultCreds, v, err)
		}
		s.UseDefaultCredentials = b
	}

	var err error
	if s.AuthTimeout, err = durationValue(values, EnvAuthTimeout, s.AuthTimeout); err != nil {
		return Settings{}, err
	}
	if s.RequestTimeout, err = durationValue(values, EnvRequestTimeout, s.RequestTimeout); err != nil {
		return Settings{}, err
	}

	if v, ok := values[EnvRateLimit]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return Settings{}, fmt.Errorf("invalid %s %q: must be a non-negative number", EnvRateLimit, v)
		}
		s.RateLimit = f
	}
	if v, ok := values[EnvRateBurst]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Settings{}, fmt.Errorf("invalid %s %q: must be a positive integer", EnvRateBurst, v)
		}
		s.RateBurst = n
	}

	return s, nil
}

func valueOr(values map[string]string, name, fallback string) string {
	if v, ok := values[name]; ok {
		return v
	}
	return fallback
}

// durationValue accepts Go duration strings or a bare number of seconds.
func durationValue(values map[string]string, name string, fallback time.Duration) (time.Duration, error) {
	v, ok := values[name]
	if !ok {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s %q: must be positive", name, v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", name, v)
	}
	return d, nil
}
