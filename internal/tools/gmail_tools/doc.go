// Package gmail_tools exposes Gmail operations as MCP tools.
//
// Messages:
//   - gmail_list_messages: List message summaries, newest first
//   - gmail_get_message: Fetch one message with decoded bodies and attachments
//   - gmail_search_messages: Search with Gmail query syntax, returning full messages
//   - gmail_send_message: Send a message, optionally as a threaded reply
//   - gmail_modify_message_labels: Add and remove labels on a message
//   - gmail_trash_message / gmail_untrash_message: Move a message to or from trash
//
// Drafts:
//   - gmail_list_drafts, gmail_create_draft, gmail_update_draft
//   - gmail_delete_draft, gmail_send_draft
//
// Labels:
//   - gmail_list_labels, gmail_create_label, gmail_delete_label
//
// Arguments are validated before any Gmail call; failures come back as error
// results with kind "validation". With read-only registration only the
// list, get and search tools are exposed.
package gmail_tools
