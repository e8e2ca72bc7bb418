// Package gmailtest provides an in-memory fake of the Gmail REST API for tests.
//
// The fake implements the subset of users.messages, users.drafts and
// users.labels that gmail-mcp calls. Messages are stored as raw RFC 5322
// bytes and rendered into the API's payload tree on read.
package gmailtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const prefix = "/gmail/v1/users/me/"

// SystemLabels are present in every fake mailbox.
var SystemLabels = []string{"INBOX", "SENT", "DRAFT", "SPAM", "TRASH", "UNREAD", "STARRED", "IMPORTANT"}

// StoredMessage is a message held by the fake.
type StoredMessage struct {
	ID       string
	ThreadID string
	LabelIDs []string
	Raw      []byte
}

type storedDraft struct {
	id        string
	messageID string
}

type storedLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`

	MessageListVisibility string `json:"messageListVisibility,omitempty"`
	LabelListVisibility   string `json:"labelListVisibility,omitempty"`
}

// Server is a fake Gmail API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	seq      int
	order    []string
	messages map[string]*StoredMessage
	drafts   map[string]*storedDraft
	labels   map[string]*storedLabel
	requests []string
	failures []failure
}

type failure struct {
	match  string
	status int
	reason string
	header map[string]string
}

// NewServer starts a fake with the system labels and no messages.
func NewServer() *Server {
	s := &Server{
		messages: make(map[string]*StoredMessage),
		drafts:   make(map[string]*storedDraft),
		labels:   make(map[string]*storedLabel),
	}
	for _, id := range SystemLabels {
		s.labels[id] = &storedLabel{ID: id, Name: id, Type: "system"}
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns "METHOD path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// FailNext makes the next request whose "METHOD path" contains match fail
// with status and reason.
func (s *Server) FailNext(match string, status int, reason string) {
	s.FailNextWithHeader(match, status, reason, nil)
}

// FailNextWithHeader is FailNext with extra response headers.
func (s *Server) FailNextWithHeader(match string, status int, reason string, header map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{match: match, status: status, reason: reason, header: header})
}

// AddMessage stores raw in a new thread and returns the message id.
func (s *Server) AddMessage(raw string, labels ...string) string {
	return s.AddMessageToThread("", raw, labels...)
}

// AddMessageToThread stores raw in threadID, or a new thread when empty.
func (s *Server) AddMessageToThread(threadID, raw string, labels ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(threadID, []byte(raw), labels).ID
}

// Message returns a stored message.
func (s *Server) Message(id string) (StoredMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return StoredMessage{}, false
	}
	return *m, true
}

// AddLabel stores a user label and returns its id.
func (s *Server) AddLabel(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("Label_%d", s.seq)
	s.labels[id] = &storedLabel{ID: id, Name: name, Type: "user"}
	return id
}

func (s *Server) store(threadID string, raw []byte, labels []string) *StoredMessage {
	s.seq++
	id := fmt.Sprintf("m%04d", s.seq)
	if threadID == "" {
		threadID = "t" + id[1:]
	}
	m := &StoredMessage{ID: id, ThreadID: threadID, LabelIDs: append([]string{}, labels...), Raw: raw}
	s.messages[id] = m
	s.order = append(s.order, id)
	return m
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := r.Method + " " + r.URL.Path
	s.requests = append(s.requests, sig)

	for i, f := range s.failures {
		if strings.Contains(sig, f.match) {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			for k, v := range f.header {
				w.Header().Set(k, v)
			}
			writeError(w, f.status, f.reason, "injected failure")
			return
		}
	}

	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusNotFound, "notFound", "unknown path")
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, prefix), "/")

	switch {
	case parts[0] == "messages":
		s.handleMessages(w, r, parts[1:])
	case parts[0] == "drafts":
		s.handleDrafts(w, r, parts[1:])
	case parts[0] == "labels":
		s.handleLabels(w, r, parts[1:])
	default:
		writeError(w, http.StatusNotFound, "notFound", "unknown collection")
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		s.listMessages(w, r)
	case len(parts) == 1 && parts[0] == "send" && r.Method == http.MethodPost:
		var body struct {
			Raw      string `json:"raw"`
			ThreadID string `json:"threadId"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		raw, err := decodeRaw(body.Raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalidArgument", "raw is not base64url")
			return
		}
		m := s.store(body.ThreadID, raw, []string{"SENT"})
		writeJSON(w, minimal(m))
	case len(parts) == 1 && r.Method == http.MethodGet:
		m, ok := s.messages[parts[0]]
		if !ok {
			writeError(w, http.StatusNotFound, "notFound", "Requested entity was not found.")
			return
		}
		writeJSON(w, render(m, r.URL.Query().Get("format"), r.URL.Query()["metadataHeaders"]))
	case len(parts) == 2 && r.Method == http.MethodPost:
		m, ok := s.messages[parts[0]]
		if !ok {
			writeError(w, http.StatusNotFound, "notFound", "Requested entity was not found.")
			return
		}
		switch parts[1] {
		case "modify":
			var body struct {
				Add    []string `json:"addLabelIds"`
				Remove []string `json:"removeLabelIds"`
			}
			if !decodeBody(w, r, &body) {
				return
			}
			for _, id := range append(append([]string{}, body.Add...), body.Remove...) {
				if _, ok := s.labels[id]; !ok {
					writeError(w, http.StatusBadRequest, "invalidArgument", "Invalid label: "+id)
					return
				}
			}
			m.LabelIDs = removeAll(m.LabelIDs, body.Remove)
			m.LabelIDs = addAll(m.LabelIDs, body.Add)
		case "trash":
			m.LabelIDs = addAll(removeAll(m.LabelIDs, []string{"INBOX"}), []string{"TRASH"})
		case "untrash":
			m.LabelIDs = addAll(removeAll(m.LabelIDs, []string{"TRASH"}), []string{"INBOX"})
		default:
			writeError(w, http.StatusNotFound, "notFound", "unknown method")
			return
		}
		writeJSON(w, minimal(m))
	default:
		writeError(w, http.StatusNotFound, "notFound", "unknown messages route")
	}
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeSpamTrash := q.Get("includeSpamTrash") == "true"
	labels := q["labelIds"]
	terms := strings.Fields(strings.ToLower(q.Get("q")))

	var ids []string
	for i := len(s.order) - 1; i >= 0; i-- {
		m := s.messages[s.order[i]]
		if m == nil || hasLabel(m, "DRAFT") {
			continue
		}
		if !includeSpamTrash && (hasLabel(m, "SPAM") || hasLabel(m, "TRASH")) {
			continue
		}
		if !hasAll(m, labels) || !matches(m, terms) {
			continue
		}
		ids = append(ids, m.ID)
	}

	page, next := paginate(ids, q.Get("pageToken"), q.Get("maxResults"))
	refs := make([]map[string]interface{}, 0, len(page))
	for _, id := range page {
		refs = append(refs, map[string]interface{}{"id": id, "threadId": s.messages[id].ThreadID})
	}
	resp := map[string]interface{}{"resultSizeEstimate": len(ids)}
	if len(refs) > 0 {
		resp["messages"] = refs
	}
	if next != "" {
		resp["nextPageToken"] = next
	}
	writeJSON(w, resp)
}

func (s *Server) handleDrafts(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		s.listDrafts(w, r)
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body struct {
			Message struct {
				Raw      string `json:"raw"`
				ThreadID string `json:"threadId"`
			} `json:"message"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		raw, err := decodeRaw(body.Message.Raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalidArgument", "raw is not base64url")
			return
		}
		m := s.store(body.Message.ThreadID, raw, []string{"DRAFT"})
		s.seq++
		d := &storedDraft{id: fmt.Sprintf("r%04d", s.seq), messageID: m.ID}
		s.drafts[d.id] = d
		writeJSON(w, map[string]interface{}{"id": d.id, "message": minimal(m)})
	case len(parts) == 1 && parts[0] == "send" && r.Method == http.MethodPost:
		var body struct {
			ID string `json:"id"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		d, ok := s.drafts[body.ID]
		if !ok {
			writeError(w, http.StatusNotFound, "notFound", "Requested entity was not found.")
			return
		}
		delete(s.drafts, d.id)
		m := s.messages[d.messageID]
		m.LabelIDs = []string{"SENT"}
		writeJSON(w, minimal(m))
	case len(parts) == 1:
		d, ok := s.drafts[parts[0]]
		if !ok {
			writeError(w, http.StatusNotFound, "notFound", "Requested entity was not found.")
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]interface{}{
				"id":      d.id,
				"message": render(s.messages[d.messageID], r.URL.Query().Get("format"), nil),
			})
		case http.MethodPut:
			var body struct {
				Message struct {
					Raw      string `json:"raw"`
					ThreadID string `json:"threadId"`
				} `json:"message"`
			}
			if !decodeBody(w, r, &body) {
				return
			}
			raw, err := decodeRaw(body.Message.Raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalidArgument", "raw is not base64url")
				return
			}
			delete(s.messages, d.messageID)
			m := s.store(body.Message.ThreadID, raw, []string{"DRAFT"})
			d.messageID = m.ID
			writeJSON(w, map[string]interface{}{"id": d.id, "message": minimal(m)})
		case http.MethodDelete:
			delete(s.drafts, d.id)
			delete(s.messages, d.messageID)
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "badRequest", "method not allowed")
		}
	default:
		writeError(w, http.StatusNotFound, "notFound", "unknown drafts route")
	}
}

func (s *Server) listDrafts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	terms := strings.Fields(strings.ToLower(q.Get("q")))

	ids := make([]string, 0, len(s.drafts))
	for id, d := range s.drafts {
		if matches(s.messages[d.messageID], terms) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page, next := paginate(ids, q.Get("pageToken"), q.Get("maxResults"))
	drafts := make([]map[string]interface{}, 0, len(page))
	for _, id := range page {
		drafts = append(drafts, map[string]interface{}{"id": id, "message": minimal(s.messages[s.drafts[id].messageID])})
	}
	resp := map[string]interface{}{"resultSizeEstimate": len(ids)}
	if len(drafts) > 0 {
		resp["drafts"] = drafts
	}
	if next != "" {
		resp["nextPageToken"] = next
	}
	writeJSON(w, resp)
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		ids := make([]string, 0, len(s.labels))
		for id := range s.labels {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		labels := make([]*storedLabel, 0, len(ids))
		for _, id := range ids {
			labels = append(labels, s.labels[id])
		}
		writeJSON(w, map[string]interface{}{"labels": labels})
	case len(parts) == 0 && r.Method == http.MethodPost:
		var l storedLabel
		if !decodeBody(w, r, &l) {
			return
		}
		for _, existing := range s.labels {
			if strings.EqualFold(existing.Name, l.Name) {
				writeError(w, http.StatusConflict, "duplicate", "Label name exists or conflicts")
				return
			}
		}
		s.seq++
		l.ID = fmt.Sprintf("Label_%d", s.seq)
		l.Type = "user"
		s.labels[l.ID] = &l
		writeJSON(w, l)
	case len(parts) == 1:
		l, ok := s.labels[parts[0]]
		if !ok {
			writeError(w, http.StatusNotFound, "notFound", "Requested entity was not found.")
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, l)
		case http.MethodDelete:
			if l.Type == "system" {
				writeError(w, http.StatusBadRequest, "invalidArgument", "Invalid delete request")
				return
			}
			delete(s.labels, l.ID)
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "badRequest", "method not allowed")
		}
	default:
		writeError(w, http.StatusNotFound, "notFound", "unknown labels route")
	}
}

func paginate(ids []string, token, max string) ([]string, string) {
	start := 0
	if token != "" {
		if n, err := strconv.Atoi(token); err == nil && n >= 0 && n <= len(ids) {
			start = n
		}
	}
	size := 100
	if n, err := strconv.Atoi(max); err == nil && n > 0 {
		size = n
	}
	end := start + size
	if end >= len(ids) {
		return ids[start:], ""
	}
	return ids[start:end], strconv.Itoa(end)
}

func hasLabel(m *StoredMessage, label string) bool {
	for _, l := range m.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

func hasAll(m *StoredMessage, labels []string) bool {
	for _, l := range labels {
		if !hasLabel(m, l) {
			return false
		}
	}
	return true
}

func matches(m *StoredMessage, terms []string) bool {
	if m == nil {
		return false
	}
	text := strings.ToLower(string(m.Raw))
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func addAll(labels, add []string) []string {
	out := append([]string{}, labels...)
	for _, a := range add {
		found := false
		for _, l := range out {
			if l == a {
				found = true
				break
			}
		}
		if !found {
			out = append(out, a)
		}
	}
	return out
}

func removeAll(labels, remove []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		keep := true
		for _, r := range remove {
			if l == r {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, l)
		}
	}
	return out
}

func decodeRaw(raw string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(raw)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "parseError", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
			"errors":  []map[string]string{{"reason": reason, "message": message, "domain": "global"}},
		},
	})
}
