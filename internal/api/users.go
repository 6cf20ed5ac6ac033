package api

import (
	"encoding/json"
	"net/http"

	"place-registry/internal/users"
	errs "place-registry/pkg/errors"
)

type sessionResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	const op = "api.signup"
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := users.SignupInput{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}
	var c checks
	c.notEmpty("name", in.Name)
	c.email("email", in.Email)
	c.minLen("password", in.Password, minPasswordLen)
	if err := c.err(op); err != nil {
		s.writeError(w, r, err)
		return
	}

	ref, err := s.storeUpload(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in.Image = ref

	sess, err := s.users.Signup(r.Context(), in)
	if err != nil {
		s.discard(ref)
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{UserID: sess.User.ID, Email: sess.User.Email, Token: sess.Token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, r, errs.NewValidation("api.login", "invalid inputs passed, please check your data", err))
		return
	}
	sess, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: sess.User.ID, Email: sess.User.Email, Token: sess.Token})
}
