package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/koustreak/dbspec/internal/ddl"
	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/koustreak/dbspec/internal/spec"
)

type diffRequest struct {
	Current string `json:"current"`
	Target  string `json:"target"`
}

type statement struct {
	SQL    string `json:"sql"`
	Object string `json:"object,omitempty"`
	Phase  string `json:"phase"`
}

type planResponse struct {
	Statements []string    `json:"statements"`
	Details    []statement `json:"details"`
	Changes    int         `json:"changes"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Key   string `json:"key,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.Ping(r.Context()); err != nil {
			s.writeError(w, r, errs.Wrap(errs.ErrKindConnectionFailed, "specification store unreachable", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	db, err := s.dump(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := spec.Marshal(db, s.opts.Spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(text)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := spec.Unmarshal(body, s.opts.Policy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	current, err := s.dump(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("revert") == "true" {
		current, target = target, current
	}
	s.plan(w, r, current, target)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req diffRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "decode request", err))
		return
	}
	current, err := s.document(req.Current)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := s.document(req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.plan(w, r, current, target)
}

// document reads a YAML specification; an empty one is an empty database.
func (s *Server) document(text string) (*model.Database, error) {
	if text == "" {
		return model.Empty(s.opts.Policy), nil
	}
	return spec.Unmarshal([]byte(text), s.opts.Policy)
}

func (s *Server) plan(w http.ResponseWriter, r *http.Request, current, target *model.Database) {
	stmts, cs, err := s.synth.Plan(current, target, s.opts.Catalog.Schemas)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanResponse(stmts, cs))
}

func newPlanResponse(stmts []ddl.Statement, cs *diff.ChangeSet) planResponse {
	resp := planResponse{
		Statements: ddl.SQL(stmts),
		Details:    make([]statement, len(stmts)),
		Changes:    len(cs.Changes),
	}
	for i, st := range stmts {
		resp.Details[i] = statement{SQL: st.SQL, Phase: st.Phase.String()}
		if st.Key.Kind != model.KindUnknown {
			resp.Details[i].Object = st.Key.String()
		}
	}
	return resp
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read request body", err)
	}
	return body, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	if code >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]interface{}{"path": r.URL.Path})
	}
	writeJSON(w, code, errorResponse{
		Error: err.Error(),
		Kind:  errs.KindOf(err).String(),
		Key:   errs.KeyOf(err),
	})
}

// status maps an error kind to an HTTP status code.
func status(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput, errs.ErrKindSpecSyntax:
		return http.StatusBadRequest
	case errs.ErrKindSpecSemantic, errs.ErrKindDanglingReference, errs.ErrKindDuplicateObject,
		errs.ErrKindSynthesis, errs.ErrKindUnsupportedObject:
		return http.StatusUnprocessableEntity
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
