package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/teemow/gmail-mcp/internal/toolerr"
)

// MaxAttachmentSize bounds a single attachment (25MB, the Gmail limit).
const MaxAttachmentSize = 25 * 1024 * 1024

// Compose describes an outgoing message.
type Compose struct {
	To       string
	Cc       string
	Bcc      string
	Subject  string
	Body     string
	HTMLBody string
	// InReplyTo and References carry threading headers.
	InReplyTo   string
	References  string
	ThreadID    string
	Attachments []AttachmentData
}

// AttachmentData is an attachment held in memory.
type AttachmentData struct {
	Filename    string
	ContentType string
	Data        []byte
}

// LoadAttachments reads attachment files from disk. Missing or oversized
// files are validation errors.
func LoadAttachments(paths []string) ([]AttachmentData, error) {
	out := make([]AttachmentData, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			return nil, toolerr.Validation("attachment path must not be empty")
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, toolerr.Validation("attachment %s is not readable: %v", path, err)
		}
		if info.IsDir() {
			return nil, toolerr.Validation("attachment %s is a directory", path)
		}
		if info.Size() > MaxAttachmentSize {
			return nil, toolerr.Validation("attachment %s is %d bytes, larger than the %d byte limit", path, info.Size(), MaxAttachmentSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, toolerr.Validation("attachment %s is not readable: %v", path, err)
		}
		name := filepath.Base(path)
		out = append(out, AttachmentData{
			Filename:    name,
			ContentType: guessContentType(name),
			Data:        data,
		})
	}
	return out, nil
}

func guessContentType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// encodeRFC2047 encodes a header value containing non-ASCII characters.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// sanitizeHeader strips line breaks so values cannot inject headers.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(v)
}

// Build renders the message as RFC 5322 bytes.
//
// With attachments the root is multipart/mixed, holding either the text part
// or a multipart/alternative of text and html. Without attachments an html
// body gives multipart/alternative and plain text gives a single text/plain.
func (c *Compose) Build() ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "To", c.To)
	writeHeader(&buf, "Cc", c.Cc)
	writeHeader(&buf, "Bcc", c.Bcc)
	writeHeader(&buf, "Subject", encodeRFC2047(c.Subject))
	writeHeader(&buf, "In-Reply-To", c.InReplyTo)
	writeHeader(&buf, "References", c.References)

	switch {
	case len(c.Attachments) > 0:
		mixed := multipart.NewWriter(&buf)
		writeHeader(&buf, "Content-Type", "multipart/mixed; boundary="+quoteBoundary(mixed.Boundary()))
		buf.WriteString("\r\n")

		if c.HTMLBody != "" {
			if err := c.writeAlternative(mixed); err != nil {
				return nil, err
			}
		} else if err := writeTextPart(mixed, "text/plain", c.Body); err != nil {
			return nil, err
		}

		for _, att := range c.Attachments {
			if err := writeAttachment(mixed, att); err != nil {
				return nil, err
			}
		}
		if err := mixed.Close(); err != nil {
			return nil, err
		}

	case c.HTMLBody != "":
		alt := multipart.NewWriter(&buf)
		writeHeader(&buf, "Content-Type", "multipart/alternative; boundary="+quoteBoundary(alt.Boundary()))
		buf.WriteString("\r\n")
		if err := writeAlternativeParts(alt, c.Body, c.HTMLBody); err != nil {
			return nil, err
		}

	default:
		writeHeader(&buf, "Content-Type", `text/plain; charset="UTF-8"`)
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		qp := quotedprintable.NewWriter(&buf)
		if _, err := io.WriteString(qp, c.Body); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Raw returns the base64url encoding the Gmail API expects.
func (c *Compose) Raw() (string, error) {
	data, err := c.Build()
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

func (c *Compose) writeAlternative(parent *multipart.Writer) error {
	var inner bytes.Buffer
	alt := multipart.NewWriter(&inner)
	if err := writeAlternativeParts(alt, c.Body, c.HTMLBody); err != nil {
		return err
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "multipart/alternative; boundary="+quoteBoundary(alt.Boundary()))
	w, err := parent.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = w.Write(inner.Bytes())
	return err
}

func writeAlternativeParts(alt *multipart.Writer, text, html string) error {
	if text != "" {
		if err := writeTextPart(alt, "text/plain", text); err != nil {
			return err
		}
	}
	if err := writeTextPart(alt, "text/html", html); err != nil {
		return err
	}
	return alt.Close()
}

func writeTextPart(w *multipart.Writer, mediaType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mediaType+`; charset="UTF-8"`)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := io.WriteString(qp, body); err != nil {
		return err
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, att AttachmentData) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = guessContentType(att.Filename)
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": att.Filename}))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
	h.Set("Content-Transfer-Encoding", "base64")
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to add attachment %s: %w", att.Filename, err)
	}

	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for len(encoded) > 76 {
		if _, err := io.WriteString(part, encoded[:76]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = io.WriteString(part, encoded+"\r\n")
	return err
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(sanitizeHeader(value))
	buf.WriteString("\r\n")
}

// quoteBoundary quotes a boundary when it holds characters that need it.
func quoteBoundary(b string) string {
	if strings.ContainsAny(b, `()<>@,;:\"/[]?= `) {
		return `"` + b + `"`
	}
	return b
}
