package gmailtest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
)

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type body struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Data         string `json:"data,omitempty"`
	Size         int64  `json:"size"`
}

type part struct {
	PartID   string   `json:"partId"`
	MimeType string   `json:"mimeType"`
	Filename string   `json:"filename"`
	Headers  []header `json:"headers,omitempty"`
	Body     *body    `json:"body,omitempty"`
	Parts    []*part  `json:"parts,omitempty"`
}

func minimal(m *StoredMessage) map[string]interface{} {
	return map[string]interface{}{
		"id":       m.ID,
		"threadId": m.ThreadID,
		"labelIds": m.LabelIDs,
	}
}

// render shapes m like users.messages.get for the given format.
func render(m *StoredMessage, format string, metadataHeaders []string) map[string]interface{} {
	out := minimal(m)
	if format == "minimal" {
		return out
	}
	if format == "raw" {
		out["raw"] = base64.URLEncoding.EncodeToString(m.Raw)
		return out
	}

	msg, err := mail.ReadMessage(bytes.NewReader(m.Raw))
	if err != nil {
		return out
	}
	headers := headerList(textproto.MIMEHeader(msg.Header), metadataHeaders)
	root := &part{PartID: "", Headers: headers}

	if format == "metadata" {
		root.MimeType = mediaType(msg.Header.Get("Content-Type"))
		out["payload"] = root
		out["snippet"] = snippetOf(m.Raw)
		return out
	}

	fillPart(root, textproto.MIMEHeader(msg.Header), msg.Body, "")
	root.Headers = headers
	out["payload"] = root
	out["snippet"] = snippetOf(m.Raw)
	out["sizeEstimate"] = len(m.Raw)
	return out
}

func headerList(h textproto.MIMEHeader, only []string) []header {
	var out []header
	if len(only) > 0 {
		for _, name := range only {
			if v := h.Get(name); v != "" {
				out = append(out, header{Name: name, Value: v})
			}
		}
		return out
	}
	for name, values := range h {
		for _, v := range values {
			out = append(out, header{Name: name, Value: v})
		}
	}
	return out
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" {
		return "text/plain"
	}
	return mt
}

func fillPart(p *part, h textproto.MIMEHeader, r io.Reader, id string) {
	p.PartID = id
	p.Headers = headerList(h, nil)
	ct := h.Get("Content-Type")
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil || ct == "" {
		mt, params = "text/plain", map[string]string{}
	}
	p.MimeType = mt

	if strings.HasPrefix(mt, "multipart/") {
		p.Body = &body{}
		mr := multipart.NewReader(r, params["boundary"])
		for i := 0; ; i++ {
			child, err := mr.NextPart()
			if err != nil {
				break
			}
			childID := fmt.Sprint(i)
			if id != "" {
				childID = id + "." + childID
			}
			cp := &part{}
			fillPart(cp, child.Header, child, childID)
			p.Parts = append(p.Parts, cp)
		}
		return
	}

	data := decodeTransfer(h.Get("Content-Transfer-Encoding"), r)

	_, disp, _ := mime.ParseMediaType(h.Get("Content-Disposition"))
	filename := disp["filename"]
	if filename == "" {
		filename = params["name"]
	}
	if filename != "" {
		p.Filename = filename
		p.Body = &body{AttachmentID: "att-" + id, Size: int64(len(data))}
		return
	}
	p.Body = &body{Data: base64.URLEncoding.EncodeToString(data), Size: int64(len(data))}
}

func decodeTransfer(encoding string, r io.Reader) []byte {
	switch strings.ToLower(encoding) {
	case "base64":
		raw, _ := io.ReadAll(r)
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		data, _ := base64.StdEncoding.DecodeString(cleaned)
		return data
	case "quoted-printable":
		data, _ := io.ReadAll(quotedprintable.NewReader(r))
		return data
	default:
		data, _ := io.ReadAll(r)
		return data
	}
}

func snippetOf(raw []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	text := string(decodeTransfer(msg.Header.Get("Content-Transfer-Encoding"), msg.Body))
	if strings.HasPrefix(mediaType(msg.Header.Get("Content-Type")), "multipart/") {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 100 {
		text = text[:100]
	}
	return text
}
