package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/relay"
	"go.uber.org/zap"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// BufferResponse is the API representation of one buffer.
type BufferResponse struct {
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	Changed  bool   `json:"changed,omitempty"`
	Revision uint64 `json:"revision,omitempty"`
}

// ConsoleResponse is the console panel contents.
type ConsoleResponse struct {
	Revision uint64          `json:"revision"`
	Entries  []relay.Message `json:"entries"`
}

// RebuildResponse reports the revision produced by a manual rebuild.
type RebuildResponse struct {
	Revision uint64 `json:"revision"`
}

func (s *Server) mountAPI(r chi.Router) {
	r.Get("/buffers", s.handleGetBuffers)
	r.Get("/buffers/{kind}", s.handleGetBuffer)
	r.Put("/buffers/{kind}", s.handlePutBuffer)
	r.Get("/console", s.handleGetConsole)
	r.Post("/rebuild", s.handleRebuild)
	r.Get("/layout", s.handleGetLayout)
}

func (s *Server) handleGetBuffers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.workspace.Snapshot())
}

func (s *Server) handleGetBuffer(w http.ResponseWriter, r *http.Request) {
	kind, err := codepad.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	text := s.workspace.Buffer(kind).Value()
	if wantsPlainText(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, text)
		return
	}
	writeJSON(w, http.StatusOK, BufferResponse{Kind: kind.String(), Text: text})
}

// handlePutBuffer replaces a buffer. The body is either JSON
// {"text": "..."} or, with a text/plain content type, the raw text.
func (s *Server) handlePutBuffer(w http.ResponseWriter, r *http.Request) {
	kind, err := codepad.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	text, err := readBufferText(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	changed := s.SetBuffer(OriginAPI, kind, text)
	s.apiLogger.Debug("buffer replaced",
		zap.Stringer("kind", kind),
		zap.Bool("changed", changed))

	writeJSON(w, http.StatusOK, BufferResponse{
		Kind:     kind.String(),
		Text:     s.workspace.Buffer(kind).Value(),
		Changed:  changed,
		Revision: s.trigger.Revision(),
	})
}

func (s *Server) handleGetConsole(w http.ResponseWriter, r *http.Request) {
	panel := s.relay.Panel()
	writeJSON(w, http.StatusOK, ConsoleResponse{
		Revision: panel.Revision(),
		Entries:  panel.Entries(),
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	rev := s.trigger.Rebuild(r.Context())
	writeJSON(w, http.StatusOK, RebuildResponse{Revision: rev.ID})
}

func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	l := s.Layout()
	if l == nil {
		writeJSONError(w, http.StatusNotFound, "no layout saved")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handlePreviewCurrent(w http.ResponseWriter, r *http.Request) {
	rev, ok := s.host.Current()
	if !ok {
		http.Error(w, "nothing rendered yet", http.StatusNotFound)
		return
	}
	writeDocument(w, rev.ID, string(rev.Document))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "revision"), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "invalid revision", http.StatusBadRequest)
		return
	}
	doc, ok := s.host.Lookup(id)
	if !ok {
		http.Error(w, "revision not retained", http.StatusNotFound)
		return
	}
	writeDocument(w, id, string(doc))
}

func writeDocument(w http.ResponseWriter, id uint64, doc string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Codepad-Revision", strconv.FormatUint(id, 10))
	_, _ = io.WriteString(w, doc)
}

func readBufferText(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	var body struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Text == nil {
		return "", errors.New(`missing "text" field`)
	}
	return *body.Text, nil
}

func wantsPlainText(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/plain") && !strings.Contains(accept, "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
