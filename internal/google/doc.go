// Package google resolves the credential gmail-mcp uses to call the Gmail API.
//
// Resolution follows a fixed priority order, and the first strategy that
// yields a usable credential wins:
//
//  1. an inline base64-encoded service account key
//  2. a service account key file
//  3. a cached OAuth token file, refreshed and rewritten when expired
//  4. an OAuth client file, driving an interactive consent flow
//  5. Application Default Credentials
//
// Plan computes the candidate order from a settings snapshot without touching
// the filesystem or network. Resolver.Resolve walks that plan. Tokens
// obtained through strategies 3 and 4 are persisted by replacing the token
// file atomically.
package google
