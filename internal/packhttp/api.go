package packhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/respack/internal/log"
	"github.com/keithlinneman/respack/resource"
)

// PackResponse summarizes the served pack.
type PackResponse struct {
	Name     string      `json:"name"`
	SHA256   string      `json:"sha256,omitempty"`
	Source   Source      `json:"source"`
	LoadedAt time.Time   `json:"loaded_at"`
	Entries  []EntryInfo `json:"entries"`
}

type EntryInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	// resource.Entry.PayloadType
	Type string `json:"type"`
	// payload length for file entries
	Size int `json:"size,omitempty"`
}

type ValueResponse struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func entryInfo(e resource.Entry) EntryInfo {
	info := EntryInfo{Name: e.Name, Kind: e.Kind.String(), Type: e.PayloadType()}
	if e.Kind == resource.KindFile {
		switch v := e.Value.(type) {
		case string:
			info.Size = len(v)
		case []byte:
			info.Size = len(v)
		}
	}
	return info
}

func (s *Server) entries(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.holder.Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no pack loaded")
		return
	}
	all := snap.Container.Entries()
	resp := PackResponse{
		Name:     snap.Name,
		SHA256:   snap.SHA256,
		Source:   snap.Source,
		LoadedAt: snap.LoadedAt.Truncate(time.Second),
		Entries:  make([]EntryInfo, 0, len(all)),
	}
	for _, e := range all {
		resp.Entries = append(resp.Entries, entryInfo(e))
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// value returns one entry as JSON. Binary payloads are base64 strings, as
// encoding/json renders []byte.
func (s *Server) value(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.holder.Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no pack loaded")
		return
	}
	name := chi.URLParam(r, "*")
	e, ok := snap.Container.Entry(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no entry named "+name)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ValueResponse{Name: e.Name, Kind: e.Kind.String(), Value: e.Value})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		// registered caller types or odd floats may not have a JSON form
		log.FromContext(r.Context()).Warn(r.Context(), "failed to encode JSON response", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "entry has no JSON representation")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
