package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

// Credential is an authorized token source together with the strategy that produced it.
type Credential struct {
	Strategy    StrategyKind
	Source      string
	TokenSource oauth2.TokenSource
}

// HTTPClient returns a client that authorizes requests with the credential.
func (c *Credential) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource)
}

// Reason explains why a strategy did not produce a credential.
type Reason string

const (
	ReasonNotConfigured Reason = "not_configured"
	ReasonMissingFile   Reason = "missing_file"
	ReasonMalformed     Reason = "malformed"
	ReasonExpired       Reason = "expired"
	ReasonRefreshFailed Reason = "refresh_failed"
	ReasonPersistFailed Reason = "persist_failed"
	ReasonNetwork       Reason = "network"
	ReasonTimeout       Reason = "timeout"
	ReasonConsentDenied Reason = "consent_denied"
	ReasonDisabled      Reason = "disabled"
)

// Attempt records one strategy that was tried and failed.
type Attempt struct {
	Strategy StrategyKind
	Source   string
	Reason   Reason
	Err      error
}

func (a Attempt) String() string {
	label := string(a.Strategy)
	if a.Source != "" {
		label += " (" + a.Source + ")"
	}
	if a.Err != nil {
		return fmt.Sprintf("%s: %s: %v", label, a.Reason, a.Err)
	}
	return fmt.Sprintf("%s: %s", label, a.Reason)
}

// AuthError lists every strategy attempted during a failed resolution.
type AuthError struct {
	Attempts []Attempt
}

func (e *AuthError) Error() string {
	if len(e.Attempts) == 0 {
		return "no credential strategy is configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return "no credential strategy succeeded: " + strings.Join(parts, "; ")
}

// Authorizer runs an interactive consent flow.
type Authorizer func(ctx context.Context, conf *oauth2.Config, timeout time.Duration, prompt io.Writer) (*oauth2.Token, error)

// DefaultFinder discovers Application Default Credentials.
type DefaultFinder func(ctx context.Context, scopes ...string) (*google.Credentials, error)

// Resolver turns a settings snapshot into a Credential.
type Resolver struct {
	mu          sync.Mutex
	rejected    atomic.Bool
	settings    config.Settings
	logger      *slog.Logger
	authorize   Authorizer
	findDefault DefaultFinder
	httpClient  *http.Client
	prompt      io.Writer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithAuthorizer replaces the interactive consent flow.
func WithAuthorizer(a Authorizer) Option {
	return func(r *Resolver) { r.authorize = a }
}

// WithDefaultFinder replaces Application Default Credentials discovery.
func WithDefaultFinder(f DefaultFinder) Option {
	return func(r *Resolver) { r.findDefault = f }
}

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.httpClient = c }
}

// WithPrompt sets where the consent URL is written. Defaults to stderr.
func WithPrompt(w io.Writer) Option {
	return func(r *Resolver) { r.prompt = w }
}

// NewResolver creates a Resolver for settings.
func NewResolver(settings config.Settings, opts ...Option) *Resolver {
	r := &Resolver{
		settings:    settings,
		logger:      slog.Default(),
		authorize:   AuthorizeInteractive,
		findDefault: google.FindDefaultCredentials,
		prompt:      os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reject records that Gmail refused the last credential. The next
// resolution refreshes a token file that still looks valid, when it can.
func (r *Resolver) Reject() {
	r.rejected.Store(true)
}

// errStop ends resolution after the current attempt.
var errStop = errors.New("stop resolution")

// Resolve walks the strategy plan and returns the first usable credential.
// Concurrent calls are serialized so at most one consent flow or token write
// happens at a time. When nothing succeeds the error is a *toolerr.Error of
// kind auth wrapping an *AuthError.
func (r *Resolver) Resolve(ctx context.Context) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := logging.WithOperation(r.logger, "credential.resolve")
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	// Token sources outlive the resolving call.
	sourceCtx := context.WithoutCancel(ctx)

	authErr := &AuthError{}
	stopped := false
	for _, strategy := range Plan(r.settings) {
		cred, attempt, err := r.try(ctx, sourceCtx, strategy)
		if cred != nil {
			r.rejected.Store(false)
			logger.Info("credential resolved", logging.Strategy(string(cred.Strategy)))
			return cred, nil
		}
		authErr.Attempts = append(authErr.Attempts, attempt)
		logger.Debug("credential strategy skipped",
			logging.Strategy(string(strategy.Kind)),
			slog.String("reason", string(attempt.Reason)),
			logging.Err(attempt.Err))
		if errors.Is(err, errStop) {
			stopped = true
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, toolerr.Auth("credential resolution cancelled", ctxErr)
		}
	}

	if !r.settings.UseDefaultCredentials && !stopped {
		authErr.Attempts = append(authErr.Attempts, Attempt{Strategy: StrategyDefault, Reason: ReasonDisabled})
	}

	logger.Warn("credential resolution failed", logging.Err(authErr))
	return nil, toolerr.Auth("credential resolution failed", authErr)
}

func (r *Resolver) try(ctx, sourceCtx context.Context, s Strategy) (*Credential, Attempt, error) {
	fail := func(reason Reason, err error) (*Credential, Attempt, error) {
		return nil, Attempt{Strategy: s.Kind, Source: s.Source, Reason: reason, Err: err}, nil
	}

	switch s.Kind {
	case StrategyServiceAccountInline:
		data, err := decodeBase64(s.Payload)
		if err != nil {
			return fail(ReasonMalformed, err)
		}
		ts, err := serviceAccountSource(sourceCtx, data, s.Subject)
		if err != nil {
			return fail(ReasonMalformed, err)
		}
		return &Credential{Strategy: s.Kind, TokenSource: ts}, Attempt{}, nil

	case StrategyServiceAccountFile:
		data, err := os.ReadFile(s.Source)
		if err != nil {
			return fail(fileReason(err), err)
		}
		ts, err := serviceAccountSource(sourceCtx, data, s.Subject)
		if err != nil {
			return fail(ReasonMalformed, err)
		}
		return &Credential{Strategy: s.Kind, Source: s.Source, TokenSource: ts}, Attempt{}, nil

	case StrategyTokenFile:
		return r.tryTokenFile(ctx, sourceCtx, s)

	case StrategyInteractive:
		conf, err := readClientConfig(s.ClientPath)
		if err != nil {
			return fail(fileReason(err), err)
		}
		tok, err := r.authorize(ctx, conf, r.settings.AuthTimeout, r.prompt)
		if err != nil {
			return fail(networkReason(err), err)
		}
		rec := recordForConfig(conf).withToken(tok)
		if err := WriteTokenFile(s.TokenPath, rec); err != nil {
			return fail(ReasonPersistFailed, err)
		}
		r.logger.Debug("token persisted",
			logging.Strategy(string(s.Kind)),
			slog.String("refresh_token", logging.SanitizeToken(tok.RefreshToken)),
			slog.String("token_file", s.TokenPath))
		ts := newPersistingTokenSource(conf.TokenSource(sourceCtx, tok), s.TokenPath, rec, tok)
		return &Credential{Strategy: s.Kind, Source: s.Source, TokenSource: ts}, Attempt{}, nil

	case StrategyDefault:
		creds, err := r.findDefault(ctx, Scopes...)
		if err != nil {
			return fail(defaultReason(err), err)
		}
		return &Credential{Strategy: s.Kind, TokenSource: creds.TokenSource}, Attempt{}, nil
	}

	return fail(ReasonNotConfigured, fmt.Errorf("unknown strategy %q", s.Kind))
}

func (r *Resolver) tryTokenFile(ctx, sourceCtx context.Context, s Strategy) (*Credential, Attempt, error) {
	fail := func(reason Reason, err error) (*Credential, Attempt, error) {
		return nil, Attempt{Strategy: s.Kind, Source: s.Source, Reason: reason, Err: err}, nil
	}

	rec, err := ReadTokenFile(s.Source)
	if err != nil {
		return fail(fileReason(err), err)
	}
	tok, err := rec.Token()
	if err != nil {
		return fail(ReasonMalformed, err)
	}

	conf := rec.OAuthConfig()
	if conf == nil {
		if clientConf, err := readClientConfig(s.ClientPath); err == nil {
			conf = clientConf
			rec.ClientID = conf.ClientID
			rec.ClientSecret = conf.ClientSecret
			rec.TokenURI = conf.Endpoint.TokenURL
		}
	}

	if r.rejected.Load() && tok.RefreshToken != "" && conf != nil {
		// Gmail refused this access token; refresh it even if it looks valid.
		tok.Expiry = time.Unix(1, 0)
	}

	if tok.Valid() {
		var base oauth2.TokenSource = oauth2.StaticTokenSource(tok)
		if conf != nil {
			base = conf.TokenSource(sourceCtx, tok)
		}
		ts := newPersistingTokenSource(base, s.TokenPath, rec, tok)
		return &Credential{Strategy: s.Kind, Source: s.Source, TokenSource: ts}, Attempt{}, nil
	}

	if tok.RefreshToken == "" || conf == nil {
		return fail(ReasonExpired, errors.New("token expired and cannot be refreshed"))
	}

	ts := newPersistingTokenSource(conf.TokenSource(ctx, tok), s.TokenPath, rec, tok)
	fresh, err := ts.Token()
	if err != nil {
		reason := ReasonRefreshFailed
		var perr *PersistError
		if errors.As(err, &perr) {
			reason = ReasonPersistFailed
		}
		attempt := Attempt{Strategy: s.Kind, Source: s.Source, Reason: reason, Err: err}
		// Without a client file there is nothing left that can re-authorize this user.
		if !fileExists(s.ClientPath) {
			return nil, attempt, errStop
		}
		return nil, attempt, nil
	}

	r.logger.Debug("token refreshed",
		logging.Strategy(string(s.Kind)),
		slog.String("access_token", logging.SanitizeToken(fresh.AccessToken)),
		slog.String("token_file", s.TokenPath))

	// Rebind refreshes to the long-lived context.
	ts = newPersistingTokenSource(conf.TokenSource(sourceCtx, fresh), s.TokenPath, ts.record, fresh)
	return &Credential{Strategy: s.Kind, Source: s.Source, TokenSource: ts}, Attempt{}, nil
}

func serviceAccountSource(ctx context.Context, data []byte, subject string) (oauth2.TokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if subject != "" {
		cfg.Subject = subject
	}
	return cfg.TokenSource(ctx), nil
}

func readClientConfig(path string) (*oauth2.Config, error) {
	if path == "" {
		return nil, errors.New("no client credentials file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conf, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client credentials %s: %w", path, err)
	}
	return conf, nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(payload); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("credentials payload is not valid base64")
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func fileReason(err error) Reason {
	if os.IsNotExist(err) {
		return ReasonMissingFile
	}
	return ReasonMalformed
}

// defaultReason classifies a default-credential discovery failure. Only
// network trouble reaching the metadata server differs from "not configured".
func defaultReason(err error) Reason {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return networkReason(err)
	}
	return ReasonNotConfigured
}

func networkReason(err error) Reason {
	if errors.Is(err, ErrConsentDenied) {
		return ReasonConsentDenied
	}
	if errors.Is(err, ErrAuthorizationTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonNetwork
}
