package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes are requested by every credential strategy. gmail.modify covers
// reading, sending, drafting, labelling and trashing without permanent
// deletion of messages.
var Scopes = []string{gmail.GmailModifyScope}
