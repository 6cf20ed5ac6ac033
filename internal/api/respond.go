package api

import (
	"encoding/json"
	"net/http"

	errs "place-registry/pkg/errors"
	"place-registry/pkg/logging"
)

const codeUnauthenticated = "UNAUTHENTICATED"

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	errs.CodeValidation:  http.StatusUnprocessableEntity,
	errs.CodeGeocoding:   http.StatusUnprocessableEntity,
	errs.CodeNotFound:    http.StatusNotFound,
	errs.CodeForbidden:   http.StatusForbidden,
	errs.CodeTransaction: http.StatusInternalServerError,
	errs.CodeStorage:     http.StatusInternalServerError,
	errs.CodeSideEffect:  http.StatusInternalServerError,
	codeUnauthenticated:  http.StatusUnauthorized,
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	if s, ok := statusByCode[errs.CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	log := s.log.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", err, logging.String("path", r.URL.Path), logging.Int("status", status))
	} else {
		log.Debug("request rejected", logging.String("path", r.URL.Path), logging.Int("status", status), logging.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody{Code: errs.CodeOf(err), Message: errs.MessageOf(err)})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Ctx(r.Context()).Debug("authentication failed", logging.String("error", err.Error()))
	writeJSON(w, http.StatusUnauthorized, errorBody{Code: codeUnauthenticated, Message: "authentication failed"})
}
