package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dshills/exthost/internal/host"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/go-chi/chi/v5"
)

// maxSettingsSize bounds a PUT /debug/settings body.
const maxSettingsSize = 1 << 20

type extensionView struct {
	ID         string            `json:"id"`
	Runtime    string            `json:"runtime"`
	State      string            `json:"state"`
	Active     bool              `json:"active"`
	Families   []protocol.Family `json:"families,omitempty"`
	Server     *protocol.Info    `json:"server,omitempty"`
	Violations int               `json:"violations,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func (s *Server) listExtensions(w http.ResponseWriter, _ *http.Request) {
	sts := s.host.Extensions()
	out := make([]extensionView, 0, len(sts))
	for _, st := range sts {
		v := extensionView{
			ID:         st.ID,
			Runtime:    st.Runtime,
			State:      st.State.String(),
			Active:     st.Active,
			Families:   st.Families,
			Server:     st.Server,
			Violations: st.Violations,
		}
		if st.Err != nil {
			v.Error = st.Err.Error()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) activateExtension(w http.ResponseWriter, r *http.Request) {
	if err := s.host.Activate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deactivateExtension(w http.ResponseWriter, r *http.Request) {
	if err := s.host.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type documentView struct {
	URI        protocol.DocumentURI `json:"uri"`
	LanguageID string               `json:"languageId"`
	Version    int32                `json:"version"`
	Length     int                  `json:"length"`
	ModifiedAt time.Time            `json:"modifiedAt"`
}

func (s *Server) listDocuments(w http.ResponseWriter, _ *http.Request) {
	snaps := s.host.Documents().List()
	out := make([]documentView, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, documentView{
			URI:        snap.URI,
			LanguageID: snap.LanguageID,
			Version:    snap.Version,
			Length:     len(snap.Text),
			ModifiedAt: snap.ModifiedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type diagnosticsView struct {
	URI         protocol.DocumentURI  `json:"uri"`
	Sources     []string              `json:"sources"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics,omitempty"`
}

// listDiagnostics returns one document's diagnostics when ?uri= is given,
// otherwise the sources of every document with diagnostics.
func (s *Server) listDiagnostics(w http.ResponseWriter, r *http.Request) {
	store := s.host.Diagnostics()
	if uri := r.URL.Query().Get("uri"); uri != "" {
		u := protocol.DocumentURI(uri)
		diags := store.ForDocument(u)
		if diags == nil {
			diags = []protocol.Diagnostic{}
		}
		writeJSON(w, http.StatusOK, diagnosticsView{URI: u, Sources: store.Sources(u), Diagnostics: diags})
		return
	}
	uris := store.Documents()
	out := make([]diagnosticsView, 0, len(uris))
	for _, u := range uris {
		out = append(out, diagnosticsView{URI: u, Sources: store.Sources(u)})
	}
	writeJSON(w, http.StatusOK, out)
}

type requestView struct {
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Started time.Time `json:"started"`
	State   string    `json:"state"`
}

func (s *Server) listRequests(w http.ResponseWriter, _ *http.Request) {
	pending := s.host.InFlight()
	out := make([]requestView, 0, len(pending))
	for _, p := range pending {
		out = append(out, requestView{ID: p.ID, Method: p.Method, Started: p.Started, State: p.State.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.host.Cancel(chi.URLParam(r, "id")); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.host.Settings().Section(r.URL.Query().Get("section")))
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.host.UpdateSettings(r.Context(), body); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registrationView struct {
	ID       string                   `json:"id"`
	Method   string                   `json:"method"`
	Owner    string                   `json:"owner"`
	Static   bool                     `json:"static"`
	Selector protocol.DocumentSelector `json:"selector,omitempty"`
	Options  json.RawMessage          `json:"options,omitempty"`
}

func (s *Server) listRegistrations(w http.ResponseWriter, r *http.Request) {
	owners := []string{r.URL.Query().Get("owner")}
	if owners[0] == "" {
		owners = owners[:0]
		for _, st := range s.host.Extensions() {
			owners = append(owners, st.ID)
		}
	}
	out := []registrationView{}
	for _, owner := range owners {
		for _, reg := range s.host.Registry().Owned(owner) {
			out = append(out, registrationView{
				ID:       reg.ID,
				Method:   reg.Method,
				Owner:    reg.Owner,
				Static:   reg.Static,
				Selector: reg.Selector,
				Options:  reg.Options,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// writeHostError maps host and wire errors to HTTP statuses.
func writeHostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, host.ErrUnknownExtension), errors.Is(err, host.ErrUnknownRequest):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, host.ErrDuplicateExtension):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, host.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, protocol.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
