package gmail_tools

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/tools/common"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

// composeOptions declares the message fields shared by send, create_draft
// and update_draft. required marks to, subject and body as required.
func composeOptions(required bool) []mcp.ToolOption {
	req := func(desc string) []mcp.PropertyOption {
		opts := []mcp.PropertyOption{mcp.Description(desc)}
		if required {
			opts = append(opts, mcp.Required())
		}
		return opts
	}
	return []mcp.ToolOption{
		mcp.WithString("to", req("Recipient address(es), comma-separated")...),
		mcp.WithString("subject", req("Subject line")...),
		mcp.WithString("body", req("Plain-text body")...),
		mcp.WithString("cc",
			mcp.Description("Cc address(es), comma-separated"),
		),
		mcp.WithString("bcc",
			mcp.Description("Bcc address(es), comma-separated"),
		),
		mcp.WithString("html_body",
			mcp.Description("HTML body, sent as an alternative to the plain-text body"),
		),
		mcp.WithArray("attachment_paths",
			mcp.Description("Local file paths to attach"),
			mcp.WithStringItems(),
		),
		mcp.WithString("reply_to_message_id",
			mcp.Description("Gmail message id to reply to; sets In-Reply-To, References and the thread"),
		),
		mcp.WithString("thread_id",
			mcp.Description("Thread to place the message in; overrides the thread of reply_to_message_id"),
		),
	}
}

// composeFromArgs validates the fields of a new message and loads its
// attachments. It returns the message and the id being replied to.
func composeFromArgs(args common.Args) (*gmail.Compose, string, error) {
	var c gmail.Compose
	var err error
	if c.To, err = args.RequiredString("to"); err != nil {
		return nil, "", err
	}
	if c.Subject, err = args.RequiredString("subject"); err != nil {
		return nil, "", err
	}
	body, err := args.OptionalString("body")
	if err != nil {
		return nil, "", err
	}
	if body == nil {
		return nil, "", toolerr.Missing("body")
	}
	c.Body = *body
	if c.Cc, err = args.String("cc"); err != nil {
		return nil, "", err
	}
	if c.Bcc, err = args.String("bcc"); err != nil {
		return nil, "", err
	}
	if c.HTMLBody, err = args.String("html_body"); err != nil {
		return nil, "", err
	}
	if c.ThreadID, err = args.String("thread_id"); err != nil {
		return nil, "", err
	}
	replyTo, err := args.String("reply_to_message_id")
	if err != nil {
		return nil, "", err
	}

	paths, err := args.StringSlice("attachment_paths")
	if err != nil {
		return nil, "", err
	}
	if len(paths) > 0 {
		if c.Attachments, err = gmail.LoadAttachments(paths); err != nil {
			return nil, "", err
		}
	}
	return &c, replyTo, nil
}

// draftUpdateFromArgs reads the optional fields of gmail_update_draft.
// Absent fields keep the draft's current values.
func draftUpdateFromArgs(args common.Args) (gmail.DraftUpdate, error) {
	var u gmail.DraftUpdate
	fields := []struct {
		name string
		dst  **string
	}{
		{"to", &u.To},
		{"subject", &u.Subject},
		{"body", &u.Body},
		{"cc", &u.Cc},
		{"bcc", &u.Bcc},
		{"html_body", &u.HTMLBody},
		{"reply_to_message_id", &u.ReplyToMessageID},
		{"thread_id", &u.ThreadID},
	}
	for _, f := range fields {
		v, err := args.OptionalString(f.name)
		if err != nil {
			return gmail.DraftUpdate{}, err
		}
		*f.dst = v
	}
	if u.ReplyToMessageID != nil && *u.ReplyToMessageID == "" {
		u.ReplyToMessageID = nil
	}

	paths, err := args.OptionalStringSlice("attachment_paths")
	if err != nil {
		return gmail.DraftUpdate{}, err
	}
	if paths != nil {
		// Fail on unreadable files before any Gmail call.
		if _, err := gmail.LoadAttachments(*paths); err != nil {
			return gmail.DraftUpdate{}, err
		}
	}
	u.AttachmentPaths = paths
	return u, nil
}
