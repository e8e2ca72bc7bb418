package instrumentation

import "strings"

// Cardinality helpers keep label values to a small fixed set.

// knownStatuses are the only status label values exported. Anything else
// collapses to "error".
var knownStatuses = map[string]bool{
	StatusSuccess: true,
	"validation":  true,
	"auth":        true,
	"not_found":   true,
	"permission":  true,
	"transport":   true,
	"quota":       true,
}

func statusLabel(status string) string {
	if knownStatuses[status] {
		return status
	}
	return StatusError
}

// ExtractUserDomain extracts the domain part from an email address.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "unknown"
	}
	return strings.ToLower(email[at+1:])
}
