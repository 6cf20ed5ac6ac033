package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"place-registry/internal/auth"
	"place-registry/internal/imagestore"
	"place-registry/internal/places"
	errs "place-registry/pkg/errors"
	"place-registry/pkg/logging"
)

func (s *Server) getPlace(w http.ResponseWriter, r *http.Request) {
	p, err := s.places.GetByID(r.Context(), mux.Vars(r)["pid"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"place": p})
}

func (s *Server) getPlacesByUser(w http.ResponseWriter, r *http.Request) {
	list, err := s.places.GetByOwner(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"places": list})
}

func (s *Server) createPlace(w http.ResponseWriter, r *http.Request) {
	const op = "api.createPlace"
	ctx := r.Context()
	caller, _ := auth.UserIDFromContext(ctx)

	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := places.CreateInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Address:     r.FormValue("address"),
	}
	var c checks
	c.notEmpty("title", in.Title)
	c.minLen("description", in.Description, minDescriptionLen)
	c.notEmpty("address", in.Address)
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

	p, err := s.places.Create(ctx, in, caller)
	if err != nil {
		// nothing references the upload any more
		s.discard(ref)
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"place": p})
}

type updatePlaceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) updatePlace(w http.ResponseWriter, r *http.Request) {
	const op = "api.updatePlace"
	caller, _ := auth.UserIDFromContext(r.Context())

	var req updatePlaceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, r, errs.NewValidation(op, "invalid inputs passed, please check your data", err))
		return
	}
	var c checks
	c.notEmpty("title", req.Title)
	c.minLen("description", req.Description, minDescriptionLen)
	if err := c.err(op); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.places.Update(r.Context(), mux.Vars(r)["pid"], places.UpdateInput{Title: req.Title, Description: req.Description}, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"place": p})
}

func (s *Server) deletePlace(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserIDFromContext(r.Context())
	if err := s.places.Delete(r.Context(), mux.Vars(r)["pid"], caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted place."})
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewValidation("api.parseMultipart", "upload is too large", err)
		}
		return errs.NewValidation("api.parseMultipart", "invalid multipart form", err)
	}
	return nil
}

// storeUpload persists the "image" form file and returns its reference.
func (s *Server) storeUpload(r *http.Request, op string) (string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return "", errs.NewValidation(op, "invalid inputs passed, please check your data: image is required", err)
	}
	defer file.Close()

	ct := header.Header.Get("Content-Type")
	if !imagestore.Accepts(ct) {
		return "", errs.NewValidation(op, "invalid mime type", nil)
	}
	return s.images.Store(r.Context(), file, ct)
}

func (s *Server) discard(ref string) {
	if s.janitor != nil {
		s.janitor.Enqueue(ref)
		return
	}
	s.log.Warn("no janitor configured, image left behind", nil, logging.String("image", ref))
}
