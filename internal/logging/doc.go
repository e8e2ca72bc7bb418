// Package logging provides structured logging utilities for gmail-mcp.
//
// All logs go through log/slog. The stdio transport owns stdout, so loggers
// built here always write to stderr, as text or JSON (--log-format).
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "credential.resolve")
//	logger.Info("credential ready",
//	    logging.Strategy("token_file"))
//
// Sanitize sensitive data before logging:
//
//	logger.Debug("token refreshed", slog.String("access_token", logging.SanitizeToken(tok)))
//	logger.Info("delegating", logging.UserHash(subject))
//
// Tokens and mailbox addresses are never logged in clear.
package logging
