package google

import (
	"github.com/teemow/gmail-mcp/internal/config"
)

// StrategyKind identifies one credential strategy.
type StrategyKind string

const (
	StrategyServiceAccountInline StrategyKind = "service_account_inline"
	StrategyServiceAccountFile   StrategyKind = "service_account_file"
	StrategyTokenFile            StrategyKind = "token_file"
	StrategyInteractive          StrategyKind = "interactive"
	StrategyDefault              StrategyKind = "default"
)

// Strategy is one candidate in a resolution plan.
type Strategy struct {
	Kind StrategyKind
	// Source is the file a strategy reads, empty for inline and default.
	Source string
	// Payload holds the base64 key for the inline strategy.
	Payload string
	// Subject is the impersonated mailbox for service account strategies.
	Subject string
	// TokenPath receives tokens obtained by the token file and interactive strategies.
	TokenPath string
	// ClientPath is the OAuth client file consulted by token_file and interactive.
	ClientPath string
}

// Label renders the strategy for logs and error messages.
func (s Strategy) Label() string {
	if s.Source == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + " (" + s.Source + ")"
}

// Plan returns the ordered candidate strategies for settings.
// It is a pure function of the snapshot.
func Plan(s config.Settings) []Strategy {
	var plan []Strategy

	if s.CredentialsConfig != "" {
		plan = append(plan, Strategy{
			Kind:    StrategyServiceAccountInline,
			Payload: s.CredentialsConfig,
			Subject: s.DelegatedUser,
		})
	}
	if s.ServiceAccountPath != "" {
		plan = append(plan, Strategy{
			Kind:    StrategyServiceAccountFile,
			Source:  s.ServiceAccountPath,
			Subject: s.DelegatedUser,
		})
	}
	if s.TokenPath != "" {
		plan = append(plan, Strategy{
			Kind:       StrategyTokenFile,
			Source:     s.TokenPath,
			TokenPath:  s.TokenPath,
			ClientPath: s.CredentialsPath,
		})
	}
	if s.CredentialsPath != "" && s.TokenPath != "" {
		plan = append(plan, Strategy{
			Kind:       StrategyInteractive,
			Source:     s.CredentialsPath,
			TokenPath:  s.TokenPath,
			ClientPath: s.CredentialsPath,
		})
	}
	if s.UseDefaultCredentials {
		plan = append(plan, Strategy{Kind: StrategyDefault})
	}

	return plan
}
