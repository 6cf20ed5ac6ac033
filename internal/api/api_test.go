package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"place-registry/internal/auth"
	"place-registry/internal/imagestore"
	"place-registry/internal/models"
	"place-registry/internal/places"
	testutil "place-registry/internal/testing"
	"place-registry/internal/users"
	errs "place-registry/pkg/errors"
	"place-registry/pkg/metrics"
)

type testEnv struct {
	store   *testutil.Store
	images  *testutil.MockImageStore
	janitor *places.ImageJanitor
	tokens  *auth.Tokens
	srv     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewStore()
	geo := testutil.NewMockGeocoder()
	geo.Resp["1 Main St"] = models.Location{Lat: 40.0, Lng: -73.0}
	images := testutil.NewMockImageStore()
	reg := metrics.NewRegistry()
	janitor := places.NewImageJanitor(images, 1, 8, nil, reg)
	tokens := auth.NewTokens("test-secret", time.Hour)

	placeSvc := places.NewService(places.Deps{
		Places:   store.Places(),
		Users:    store.Users(),
		Scopes:   store.Scopes(),
		Geocoder: geo,
		Janitor:  janitor,
		Metrics:  reg,
	}, places.Options{EmptyOwnerAsError: true})
	userSvc := users.NewService(store.Users(), tokens, nil)

	s := NewServer(Deps{
		Places:   placeSvc,
		Users:    userSvc,
		Images:   images,
		Janitor:  janitor,
		Tokens:   tokens,
		Metrics:  reg.Handler(),
		Registry: reg,
	}, Config{MaxUploadBytes: 1 << 20})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		srv.Close()
		_ = janitor.Close(context.Background())
	})
	return &testEnv{store: store, images: images, janitor: janitor, tokens: tokens, srv: srv}
}

func multipartBody(t *testing.T, fields map[string]string, withImage bool) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if withImage {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="pic.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte("\x89PNG fake"))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) do(t *testing.T, method, path, token, contentType string, body io.Reader) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) signup(t *testing.T, name, email string) (id, token string) {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"name": name, "email": email, "password": "secret1"}, true)
	status, out := e.do(t, http.MethodPost, "/api/users/signup", "", ct, body)
	if status != http.StatusCreated {
		t.Fatalf("signup %s: %d %v", email, status, out)
	}
	return out["userId"].(string), out["token"].(string)
}

func TestPlaceFlow(t *testing.T) {
	e := newTestEnv(t)
	u1, tok1 := e.signup(t, "Max", "max@test.com")
	_, tok2 := e.signup(t, "Ann", "ann@test.com")

	status, out := e.do(t, http.MethodGet, "/api/places/user/"+u1, "", "", nil)
	if status != http.StatusNotFound || out["code"] != errs.CodeNotFound {
		t.Fatalf("empty listing: %d %v", status, out)
	}

	body, ct := multipartBody(t, map[string]string{"title": "Library", "description": "City library", "address": "1 Main St"}, true)
	status, out = e.do(t, http.MethodPost, "/api/places", tok1, ct, body)
	if status != http.StatusCreated {
		t.Fatalf("create: %d %v", status, out)
	}
	place := out["place"].(map[string]any)
	pid := place["id"].(string)
	if place["creator"] != u1 {
		t.Fatalf("creator = %v", place["creator"])
	}

	if status, _ = e.do(t, http.MethodGet, "/api/places/"+pid, "", "", nil); status != http.StatusOK {
		t.Fatalf("get: %d", status)
	}
	status, out = e.do(t, http.MethodGet, "/api/places/user/"+u1, "", "", nil)
	if status != http.StatusOK || len(out["places"].([]any)) != 1 {
		t.Fatalf("listing: %d %v", status, out)
	}

	patch := strings.NewReader(`{"title":"Hacked","description":"Hacked place"}`)
	if status, out = e.do(t, http.MethodPatch, "/api/places/"+pid, tok2, "application/json", patch); status != http.StatusForbidden || out["code"] != errs.CodeForbidden {
		t.Fatalf("non-owner patch: %d %v", status, out)
	}
	patch = strings.NewReader(`{"title":"Central Library","description":"Renovated"}`)
	if status, out = e.do(t, http.MethodPatch, "/api/places/"+pid, tok1, "application/json", patch); status != http.StatusOK {
		t.Fatalf("owner patch: %d %v", status, out)
	}

	if status, out = e.do(t, http.MethodDelete, "/api/places/"+pid, "", "", nil); status != http.StatusUnauthorized || out["code"] != codeUnauthenticated {
		t.Fatalf("anonymous delete: %d %v", status, out)
	}
	if status, _ = e.do(t, http.MethodDelete, "/api/places/"+pid, tok2, "", nil); status != http.StatusForbidden {
		t.Fatalf("non-owner delete: %d", status)
	}
	if status, out = e.do(t, http.MethodDelete, "/api/places/"+pid, tok1, "", nil); status != http.StatusOK {
		t.Fatalf("owner delete: %d %v", status, out)
	}
	if status, _ = e.do(t, http.MethodGet, "/api/places/"+pid, "", "", nil); status != http.StatusNotFound {
		t.Fatalf("get after delete: %d", status)
	}
	if err := e.store.CheckOwnership(); err != nil {
		t.Fatal(err)
	}

	if err := e.janitor.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := e.images.DeletedRefs(); len(got) != 1 || got[0] != place["image"] {
		t.Fatalf("image deletions = %v, want [%v]", got, place["image"])
	}
}

func TestCreatePlaceRejections(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.signup(t, "Max", "max@test.com")
	stored := len(e.images.Objects)

	tests := []struct {
		name   string
		fields map[string]string
		image  bool
		status int
		code   string
	}{
		{"short description", map[string]string{"title": "Library", "description": "abc", "address": "1 Main St"}, true, http.StatusUnprocessableEntity, errs.CodeValidation},
		{"missing title", map[string]string{"description": "City library", "address": "1 Main St"}, true, http.StatusUnprocessableEntity, errs.CodeValidation},
		{"missing image", map[string]string{"title": "Library", "description": "City library", "address": "1 Main St"}, false, http.StatusUnprocessableEntity, errs.CodeValidation},
		{"unknown address", map[string]string{"title": "Library", "description": "City library", "address": "nowhere"}, true, http.StatusUnprocessableEntity, errs.CodeGeocoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, tt.image)
			status, out := e.do(t, http.MethodPost, "/api/places", tok, ct, body)
			if status != tt.status || out["code"] != tt.code {
				t.Fatalf("got %d %v, want %d %s", status, out, tt.status, tt.code)
			}
		})
	}

	// the upload accepted before geocoding failed is cleaned up
	if err := e.janitor.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	e.images.Mu.Lock()
	defer e.images.Mu.Unlock()
	if len(e.images.Objects) != stored {
		t.Fatalf("orphaned uploads: %d objects, want %d", len(e.images.Objects), stored)
	}
	if e.store.PlaceCount() != 0 {
		t.Fatal("rejected requests created places")
	}
}

func TestUserRoutes(t *testing.T) {
	e := newTestEnv(t)
	e.signup(t, "Max", "max@test.com")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid login", `{"email":"max@test.com","password":"secret1"}`, http.StatusOK},
		{"wrong password", `{"email":"max@test.com","password":"nope123"}`, http.StatusForbidden},
		{"malformed", `{`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := e.do(t, http.MethodPost, "/api/users/login", "", "application/json", strings.NewReader(tt.body))
			if status != tt.status {
				t.Fatalf("got %d %v, want %d", status, out, tt.status)
			}
		})
	}

	body, ct := multipartBody(t, map[string]string{"name": "Max", "email": "max@test.com", "password": "secret1"}, true)
	if status, out := e.do(t, http.MethodPost, "/api/users/signup", "", ct, body); status != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate signup: %d %v", status, out)
	}
	body, ct = multipartBody(t, map[string]string{"name": "Bad", "email": "not-an-email", "password": "123"}, true)
	if status, out := e.do(t, http.MethodPost, "/api/users/signup", "", ct, body); status != http.StatusUnprocessableEntity {
		t.Fatalf("invalid signup: %d %v", status, out)
	}

	status, out := e.do(t, http.MethodGet, "/api/users", "", "", nil)
	if status != http.StatusOK || len(out["users"].([]any)) != 1 {
		t.Fatalf("list users: %d %v", status, out)
	}
	if _, leaked := out["users"].([]any)[0].(map[string]any)["PasswordHash"]; leaked {
		t.Fatal("password hash serialized")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.NewValidation("op", "bad", nil), http.StatusUnprocessableEntity},
		{errs.NewGeocoding("op", "x", "bad", nil), http.StatusUnprocessableEntity},
		{errs.NewNotFound("op", "place", "p1"), http.StatusNotFound},
		{errs.NewAuthorization("op", "u2", "no"), http.StatusForbidden},
		{errs.NewTransaction("op", "failed", nil), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", errs.NewNotFound("op", "user", "u1")), http.StatusNotFound},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPreflightAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	status, _ := e.do(t, http.MethodOptions, "/api/places", "", "", nil)
	if status != http.StatusNoContent {
		t.Fatalf("preflight: %d", status)
	}
	resp, err := http.Get(e.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"places_created_total", "http_request_duration_ms_count"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("metrics output missing %s:\n%s", want, b)
		}
	}
}

func TestUploadPrefix(t *testing.T) {
	tests := map[string]string{
		"uploads/images":    "/uploads/images/",
		"./uploads/images":  "/uploads/images/",
		"uploads//images/":  "/uploads/images/",
		"/srv/./uploads":    "/srv/uploads/",
		"uploads/../images": "/images/",
	}
	for dir, want := range tests {
		if got := uploadPrefix(dir); got != want {
			t.Errorf("uploadPrefix(%q) = %q, want %q", dir, got, want)
		}
	}
}

func TestServesStoredImagesFromUncleanDir(t *testing.T) {
	dir := t.TempDir() + "/./images"
	store, err := imagestore.NewLocalStore(dir, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := store.Store(context.Background(), strings.NewReader("png bytes"), "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	s := NewServer(Deps{Images: store, Registry: metrics.NewRegistry()}, Config{UploadDir: dir})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/" + strings.TrimPrefix(ref, "/"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "png bytes" {
		t.Fatalf("GET %s: %d %q", ref, resp.StatusCode, body)
	}
}
