package gmail

// MessageSummary is the lightweight record returned by list operations.
type MessageSummary struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Snippet  string `json:"snippet"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	Date     string `json:"date"`
}

// Attachment describes a file attached to a message.
type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	AttachmentID string `json:"attachment_id"`
}

// Message is a fully decoded message.
type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Cc          string       `json:"cc"`
	Date        string       `json:"date"`
	Snippet     string       `json:"snippet"`
	BodyText    string       `json:"body_text"`
	BodyHTML    string       `json:"body_html"`
	LabelIDs    []string     `json:"label_ids"`
	Attachments []Attachment `json:"attachments"`
}

// MessageList is one page of message summaries.
type MessageList struct {
	Messages           []MessageSummary `json:"messages"`
	NextPageToken      string           `json:"next_page_token,omitempty"`
	ResultSizeEstimate int64            `json:"result_size_estimate"`
}

// SearchResult is one page of fully decoded messages.
type SearchResult struct {
	Messages           []Message `json:"messages"`
	NextPageToken      string    `json:"next_page_token,omitempty"`
	ResultSizeEstimate int64     `json:"result_size_estimate"`
}

// DraftSummary is the lightweight record returned when listing drafts.
type DraftSummary struct {
	DraftID   string `json:"draft_id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	Subject   string `json:"subject"`
	To        string `json:"to"`
	Snippet   string `json:"snippet"`
}

// DraftList is one page of drafts.
type DraftList struct {
	Drafts             []DraftSummary `json:"drafts"`
	NextPageToken      string         `json:"next_page_token,omitempty"`
	ResultSizeEstimate int64          `json:"result_size_estimate"`
}

// SentMessage identifies a message after it has been sent.
type SentMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	LabelIDs []string `json:"label_ids"`
}

// DraftRef identifies a draft and the message it wraps.
type DraftRef struct {
	DraftID   string `json:"draft_id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// Label is a Gmail label. Type is "system" or "user".
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// LabelList holds every label in the mailbox.
type LabelList struct {
	Labels []Label `json:"labels"`
}

// LabelState is a message's labels after a change.
type LabelState struct {
	ID       string   `json:"id"`
	LabelIDs []string `json:"label_ids"`
}

// ListMessagesOptions filter gmail_list_messages.
type ListMessagesOptions struct {
	Query            string
	LabelIDs         []string
	MaxResults       int64
	PageToken        string
	IncludeSpamTrash bool
}

// SearchOptions filter gmail_search_messages.
type SearchOptions struct {
	Query      string
	MaxResults int64
	PageToken  string
}

// ListDraftsOptions filter gmail_list_drafts.
type ListDraftsOptions struct {
	Query      string
	MaxResults int64
	PageToken  string
}

// DraftUpdate carries the fields to overlay on an existing draft.
// A nil field keeps the draft's current value.
type DraftUpdate struct {
	To               *string
	Subject          *string
	Body             *string
	Cc               *string
	Bcc              *string
	HTMLBody         *string
	AttachmentPaths  *[]string
	ReplyToMessageID *string
	ThreadID         *string
}
