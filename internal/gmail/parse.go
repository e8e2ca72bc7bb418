package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// HeaderValue returns the first header named name, case-insensitively.
func HeaderValue(m *gmail.Message, name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	return partHeader(m.Payload, name)
}

func partHeader(p *gmail.MessagePart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// walkParts visits part and every nested part depth-first.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, p := range part.Parts {
		walkParts(p, fn)
	}
}

// decodeBodyData decodes Gmail body data, which is base64url with or
// without padding.
func decodeBodyData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	trimmed := strings.TrimRight(s, "=")
	if data, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return data, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}
	return data, nil
}

func summaryFromAPI(m *gmail.Message) MessageSummary {
	return MessageSummary{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
		Subject:  HeaderValue(m, "Subject"),
		From:     HeaderValue(m, "From"),
		Date:     HeaderValue(m, "Date"),
	}
}

// messageFromAPI decodes a message fetched in full format. The first
// text/plain and text/html leaves become the bodies; parts carrying a
// filename are reported as attachments.
func messageFromAPI(m *gmail.Message) (Message, error) {
	out := Message{
		ID:          m.Id,
		ThreadID:    m.ThreadId,
		Subject:     HeaderValue(m, "Subject"),
		From:        HeaderValue(m, "From"),
		To:          HeaderValue(m, "To"),
		Cc:          HeaderValue(m, "Cc"),
		Date:        HeaderValue(m, "Date"),
		Snippet:     m.Snippet,
		LabelIDs:    nonNil(m.LabelIds),
		Attachments: []Attachment{},
	}

	var decodeErr error
	walkParts(m.Payload, func(p *gmail.MessagePart) {
		if decodeErr != nil {
			return
		}
		if p.Filename != "" {
			att := Attachment{Filename: p.Filename, MimeType: p.MimeType}
			if p.Body != nil {
				att.Size = p.Body.Size
				att.AttachmentID = p.Body.AttachmentId
			}
			out.Attachments = append(out.Attachments, att)
			return
		}
		if p.Body == nil || p.Body.Data == "" {
			return
		}
		switch strings.ToLower(p.MimeType) {
		case "text/plain":
			if out.BodyText == "" {
				data, err := decodeBodyData(p.Body.Data)
				decodeErr = err
				out.BodyText = bodyText(data)
			}
		case "text/html":
			if out.BodyHTML == "" {
				data, err := decodeBodyData(p.Body.Data)
				decodeErr = err
				out.BodyHTML = bodyText(data)
			}
		}
	})
	if decodeErr != nil {
		return Message{}, decodeErr
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// bodyText converts the CRLF line endings of a decoded text part back to LF.
// Outgoing text is quoted-printable encoded, which writes CRLF.
func bodyText(data []byte) string {
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}

var headerDecoder = mime.WordDecoder{}

func decodeHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// ParseRaw parses a base64url raw message, as returned for drafts fetched in
// raw format, back into a Compose.
func ParseRaw(raw string) (*Compose, error) {
	data, err := decodeBodyData(raw)
	if err != nil {
		return nil, err
	}
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	c := &Compose{
		To:         msg.Header.Get("To"),
		Cc:         msg.Header.Get("Cc"),
		Bcc:        msg.Header.Get("Bcc"),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
		InReplyTo:  msg.Header.Get("In-Reply-To"),
		References: msg.Header.Get("References"),
	}

	err = parseEntity(c, msg.Header.Get("Content-Type"), msg.Header.Get("Content-Disposition"),
		msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func parseEntity(c *Compose, contentType, disposition, encoding string, body io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read message part: %w", err)
			}
			err = parseEntity(c, part.Header.Get("Content-Type"), part.Header.Get("Content-Disposition"),
				part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return err
			}
		}
	}

	content, err := readDecoded(encoding, body)
	if err != nil {
		return err
	}

	filename := params["name"]
	dispType, dispParams, _ := mime.ParseMediaType(disposition)
	if dispParams["filename"] != "" {
		filename = dispParams["filename"]
	}
	if dispType == "attachment" || filename != "" {
		c.Attachments = append(c.Attachments, AttachmentData{
			Filename:    filename,
			ContentType: mediaType,
			Data:        content,
		})
		return nil
	}

	text := bodyText(content)
	switch mediaType {
	case "text/plain":
		if c.Body == "" {
			c.Body = text
		}
	case "text/html":
		if c.HTMLBody == "" {
			c.HTMLBody = text
		}
	}
	return nil
}

func readDecoded(encoding string, r io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, string(data))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 part: %w", err)
		}
		return decoded, nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}
