// Package gmail wraps the Gmail API for the gmail-mcp tools.
//
// Client methods map one tool operation onto one Gmail call, or a short fixed
// sequence (update a draft: fetch raw, merge, update). Responses are reshaped
// into flat records with stable JSON field names. Failures come back as
// *toolerr.Error values classified from the API status.
//
// Outgoing messages are built by Compose.Build as RFC 5322 bytes:
// text/plain, multipart/alternative when an html body is present, and
// multipart/mixed when attachments are present.
package gmail
