package gmail

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/gmail-mcp/internal/toolerr"
)

// me addresses the authenticated mailbox (or the delegated subject).
const me = "me"

// Observer receives one record per Gmail API call.
type Observer interface {
	ObserveGmailCall(ctx context.Context, operation, status string, duration time.Duration)
}

// Client wraps the Gmail Users service.
type Client struct {
	svc      *gmail.UsersService
	limiter  *RateLimiter
	timeout  time.Duration
	observer Observer
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	endpoint string
	limiter  *RateLimiter
	timeout  time.Duration
	observer Observer
}

// WithEndpoint points the client at another Gmail API base URL.
func WithEndpoint(url string) ClientOption {
	return func(o *clientOptions) {
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		o.endpoint = url
	}
}

// WithRateLimiter paces outbound calls.
func WithRateLimiter(l *RateLimiter) ClientOption {
	return func(o *clientOptions) { o.limiter = l }
}

// WithRequestTimeout bounds each remote call.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithObserver reports every call to o.
func WithObserver(o Observer) ClientOption {
	return func(opts *clientOptions) { opts.observer = o }
}

// NewClient creates a Gmail client that sends requests through httpClient.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...ClientOption) (*Client, error) {
	o := clientOptions{timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		apiOpts = append(apiOpts, option.WithEndpoint(o.endpoint))
	}
	svc, err := gmail.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:      svc.Users,
		limiter:  o.limiter,
		timeout:  o.timeout,
		observer: o.observer,
	}, nil
}

// call runs fn under the rate limiter and request timeout and classifies
// any failure.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classifyError(op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if secs := retryAfter(err); secs >= 0 {
		c.limiter.RecordRateLimitError(secs)
	}
	err = classifyError(op, err)

	if c.observer != nil {
		status := "success"
		if err != nil {
			status = string(toolerr.KindOf(err))
		}
		c.observer.ObserveGmailCall(ctx, op, status, time.Since(start))
	}
	return err
}

// ListMessages lists one page of messages and fetches display headers for each.
func (c *Client) ListMessages(ctx context.Context, opts ListMessagesOptions) (*MessageList, error) {
	var resp *gmail.ListMessagesResponse
	err := c.call(ctx, "messages.list", func(ctx context.Context) error {
		req := c.svc.Messages.List(me).MaxResults(opts.MaxResults).IncludeSpamTrash(opts.IncludeSpamTrash)
		if opts.Query != "" {
			req = req.Q(opts.Query)
		}
		if len(opts.LabelIDs) > 0 {
			req = req.LabelIds(opts.LabelIDs...)
		}
		if opts.PageToken != "" {
			req = req.PageToken(opts.PageToken)
		}
		var err error
		resp, err = req.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	refs := truncate(resp.Messages, opts.MaxResults)
	out := &MessageList{
		Messages:           make([]MessageSummary, 0, len(refs)),
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}
	for _, ref := range refs {
		m, err := c.getMessage(ctx, ref.Id, "metadata", "Subject", "From", "Date")
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, summaryFromAPI(m))
	}
	return out, nil
}

// GetMessage fetches and decodes one message.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	m, err := c.getMessage(ctx, id, "full")
	if err != nil {
		return nil, err
	}
	msg, err := messageFromAPI(m)
	if err != nil {
		return nil, toolerr.Transport("failed to decode message "+id, err)
	}
	return &msg, nil
}

func (c *Client) getMessage(ctx context.Context, id, format string, headers ...string) (*gmail.Message, error) {
	var m *gmail.Message
	err := c.call(ctx, "messages.get", func(ctx context.Context) error {
		req := c.svc.Messages.Get(me, id).Format(format)
		if len(headers) > 0 {
			req = req.MetadataHeaders(headers...)
		}
		var err error
		m, err = req.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SearchMessages lists one page of messages and fetches each in full.
func (c *Client) SearchMessages(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	var resp *gmail.ListMessagesResponse
	err := c.call(ctx, "messages.list", func(ctx context.Context) error {
		req := c.svc.Messages.List(me).Q(opts.Query).MaxResults(opts.MaxResults)
		if opts.PageToken != "" {
			req = req.PageToken(opts.PageToken)
		}
		var err error
		resp, err = req.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	refs := truncate(resp.Messages, opts.MaxResults)
	out := &SearchResult{
		Messages:           make([]Message, 0, len(refs)),
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}
	for _, ref := range refs {
		msg, err := c.GetMessage(ctx, ref.Id)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, *msg)
	}
	return out, nil
}

func truncate(refs []*gmail.Message, max int64) []*gmail.Message {
	if max > 0 && int64(len(refs)) > max {
		return refs[:max]
	}
	return refs
}

// ListDrafts lists one page of drafts with their display headers.
func (c *Client) ListDrafts(ctx context.Context, opts ListDraftsOptions) (*DraftList, error) {
	var resp *gmail.ListDraftsResponse
	err := c.call(ctx, "drafts.list", func(ctx context.Context) error {
		req := c.svc.Drafts.List(me).MaxResults(opts.MaxResults)
		if opts.Query != "" {
			req = req.Q(opts.Query)
		}
		if opts.PageToken != "" {
			req = req.PageToken(opts.PageToken)
		}
		var err error
		resp, err = req.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	drafts := resp.Drafts
	if opts.MaxResults > 0 && int64(len(drafts)) > opts.MaxResults {
		drafts = drafts[:opts.MaxResults]
	}
	out := &DraftList{
		Drafts:             make([]DraftSummary, 0, len(drafts)),
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}
	for _, d := range drafts {
		full, err := c.getDraft(ctx, d.Id, "metadata")
		if err != nil {
			return nil, err
		}
		summary := DraftSummary{DraftID: full.Id}
		if full.Message != nil {
			summary.MessageID = full.Message.Id
			summary.ThreadID = full.Message.ThreadId
			summary.Snippet = full.Message.Snippet
			summary.Subject = HeaderValue(full.Message, "Subject")
			summary.To = HeaderValue(full.Message, "To")
		}
		out.Drafts = append(out.Drafts, summary)
	}
	return out, nil
}

func (c *Client) getDraft(ctx context.Context, id, format string) (*gmail.Draft, error) {
	var d *gmail.Draft
	err := c.call(ctx, "drafts.get", func(ctx context.Context) error {
		var err error
		d, err = c.svc.Drafts.Get(me, id).Format(format).Context(ctx).Do()
		return err
	})
	return d, err
}

// threading fills In-Reply-To, References and the thread from the message
// being replied to. An explicit thread id on compose wins.
func (c *Client) threading(ctx context.Context, compose *Compose, replyTo string) error {
	if replyTo == "" {
		return nil
	}
	orig, err := c.getMessage(ctx, replyTo, "metadata", "Message-ID", "References")
	if err != nil {
		return err
	}
	messageID := HeaderValue(orig, "Message-ID")
	if messageID == "" {
		messageID = HeaderValue(orig, "Message-Id")
	}
	if messageID != "" {
		compose.InReplyTo = messageID
		if refs := strings.TrimSpace(HeaderValue(orig, "References")); refs != "" {
			compose.References = refs + " " + messageID
		} else {
			compose.References = messageID
		}
	}
	if compose.ThreadID == "" {
		compose.ThreadID = orig.ThreadId
	}
	return nil
}

func (c *Client) rawMessage(compose *Compose) (*gmail.Message, error) {
	raw, err := compose.Raw()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	return &gmail.Message{Raw: raw, ThreadId: compose.ThreadID}, nil
}

// SendMessage sends compose. When replyTo is set the message is threaded
// under that message.
func (c *Client) SendMessage(ctx context.Context, compose *Compose, replyTo string) (*SentMessage, error) {
	if err := c.threading(ctx, compose, replyTo); err != nil {
		return nil, err
	}
	msg, err := c.rawMessage(compose)
	if err != nil {
		return nil, err
	}

	var sent *gmail.Message
	err = c.call(ctx, "messages.send", func(ctx context.Context) error {
		var err error
		sent, err = c.svc.Messages.Send(me, msg).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SentMessage{ID: sent.Id, ThreadID: sent.ThreadId, LabelIDs: nonNil(sent.LabelIds)}, nil
}

// CreateDraft stores compose as a draft.
func (c *Client) CreateDraft(ctx context.Context, compose *Compose, replyTo string) (*DraftRef, error) {
	if err := c.threading(ctx, compose, replyTo); err != nil {
		return nil, err
	}
	msg, err := c.rawMessage(compose)
	if err != nil {
		return nil, err
	}

	var d *gmail.Draft
	err = c.call(ctx, "drafts.create", func(ctx context.Context) error {
		var err error
		d, err = c.svc.Drafts.Create(me, &gmail.Draft{Message: msg}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return draftRef(d), nil
}

// UpdateDraft overlays update on the draft's current content and saves it.
func (c *Client) UpdateDraft(ctx context.Context, draftID string, update DraftUpdate) (*DraftRef, error) {
	var attachments []AttachmentData
	if update.AttachmentPaths != nil {
		var err error
		if attachments, err = LoadAttachments(*update.AttachmentPaths); err != nil {
			return nil, err
		}
	}

	existing, err := c.getDraft(ctx, draftID, "raw")
	if err != nil {
		return nil, err
	}
	if existing.Message == nil {
		return nil, toolerr.NotFound("draft "+draftID+" has no message", nil)
	}

	compose, err := ParseRaw(existing.Message.Raw)
	if err != nil {
		return nil, toolerr.Transport("failed to parse draft "+draftID, err)
	}
	compose.ThreadID = existing.Message.ThreadId

	overlay(&compose.To, update.To)
	overlay(&compose.Subject, update.Subject)
	overlay(&compose.Body, update.Body)
	overlay(&compose.Cc, update.Cc)
	overlay(&compose.Bcc, update.Bcc)
	overlay(&compose.HTMLBody, update.HTMLBody)
	overlay(&compose.ThreadID, update.ThreadID)
	if update.AttachmentPaths != nil {
		compose.Attachments = attachments
	}
	if update.ReplyToMessageID != nil {
		if update.ThreadID == nil {
			compose.ThreadID = ""
		}
		if err := c.threading(ctx, compose, *update.ReplyToMessageID); err != nil {
			return nil, err
		}
	}

	msg, err := c.rawMessage(compose)
	if err != nil {
		return nil, err
	}

	var d *gmail.Draft
	err = c.call(ctx, "drafts.update", func(ctx context.Context) error {
		var err error
		d, err = c.svc.Drafts.Update(me, draftID, &gmail.Draft{Id: draftID, Message: msg}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return draftRef(d), nil
}

func overlay(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func draftRef(d *gmail.Draft) *DraftRef {
	ref := &DraftRef{DraftID: d.Id}
	if d.Message != nil {
		ref.MessageID = d.Message.Id
		ref.ThreadID = d.Message.ThreadId
	}
	return ref
}

// DeleteDraft permanently deletes a draft.
func (c *Client) DeleteDraft(ctx context.Context, draftID string) error {
	return c.call(ctx, "drafts.delete", func(ctx context.Context) error {
		return c.svc.Drafts.Delete(me, draftID).Context(ctx).Do()
	})
}

// SendDraft sends an existing draft.
func (c *Client) SendDraft(ctx context.Context, draftID string) (*SentMessage, error) {
	var sent *gmail.Message
	err := c.call(ctx, "drafts.send", func(ctx context.Context) error {
		var err error
		sent, err = c.svc.Drafts.Send(me, &gmail.Draft{Id: draftID}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SentMessage{ID: sent.Id, ThreadID: sent.ThreadId, LabelIDs: nonNil(sent.LabelIds)}, nil
}

// ListLabels returns every label in the mailbox.
func (c *Client) ListLabels(ctx context.Context) (*LabelList, error) {
	var resp *gmail.ListLabelsResponse
	err := c.call(ctx, "labels.list", func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Labels.List(me).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := &LabelList{Labels: make([]Label, 0, len(resp.Labels))}
	for _, l := range resp.Labels {
		out.Labels = append(out.Labels, Label{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	return out, nil
}

// CreateLabel creates a visible user label. Slashes in name nest the label
// under its parents and are stored verbatim.
func (c *Client) CreateLabel(ctx context.Context, name string) (*Label, error) {
	var l *gmail.Label
	err := c.call(ctx, "labels.create", func(ctx context.Context) error {
		var err error
		l, err = c.svc.Labels.Create(me, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Label{ID: l.Id, Name: l.Name, Type: l.Type}, nil
}

// DeleteLabel deletes a user label. System labels are refused without
// calling delete.
func (c *Client) DeleteLabel(ctx context.Context, labelID string) error {
	var l *gmail.Label
	err := c.call(ctx, "labels.get", func(ctx context.Context) error {
		var err error
		l, err = c.svc.Labels.Get(me, labelID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}
	if strings.EqualFold(l.Type, "system") {
		return toolerr.Permission(fmt.Sprintf("label %s is a system label and cannot be deleted", labelID), nil)
	}

	return c.call(ctx, "labels.delete", func(ctx context.Context) error {
		return c.svc.Labels.Delete(me, labelID).Context(ctx).Do()
	})
}

// ModifyLabels adds and removes labels on a message in one call.
func (c *Client) ModifyLabels(ctx context.Context, messageID string, add, remove []string) (*LabelState, error) {
	var m *gmail.Message
	err := c.call(ctx, "messages.modify", func(ctx context.Context) error {
		var err error
		m, err = c.svc.Messages.Modify(me, messageID, &gmail.ModifyMessageRequest{
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &LabelState{ID: m.Id, LabelIDs: nonNil(m.LabelIds)}, nil
}

// TrashMessage moves a message to the trash.
func (c *Client) TrashMessage(ctx context.Context, messageID string) (*LabelState, error) {
	var m *gmail.Message
	err := c.call(ctx, "messages.trash", func(ctx context.Context) error {
		var err error
		m, err = c.svc.Messages.Trash(me, messageID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &LabelState{ID: m.Id, LabelIDs: nonNil(m.LabelIds)}, nil
}

// UntrashMessage restores a message from the trash.
func (c *Client) UntrashMessage(ctx context.Context, messageID string) (*LabelState, error) {
	var m *gmail.Message
	err := c.call(ctx, "messages.untrash", func(ctx context.Context) error {
		var err error
		m, err = c.svc.Messages.Untrash(me, messageID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &LabelState{ID: m.Id, LabelIDs: nonNil(m.LabelIds)}, nil
}
