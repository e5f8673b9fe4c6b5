package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/credkeeper/auth"
	"github.com/hazyhaar/credkeeper/shield"
)

const (
	minPasswordLen = 6
	sessionTTL     = 24 * time.Hour
)

type server struct {
	store  *vaultStore
	secret []byte
	logger *slog.Logger
}

func (s *server) router(rl *shield.RateLimiter) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	if rl != nil {
		r.Use(rl.Middleware)
	}
	r.Use(auth.Middleware(s.secret))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/v1/auth/login", s.handleLogin)

	r.Route("/api/v1/platform-registrations", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Post("/by-name", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/password", s.handlePassword)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})

	return r
}

// envelope is the uniform response wrapper.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(envelope{Code: code, Message: message, Data: data})
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeEnvelope(w, code, "ok", data)
}

func writeFail(w http.ResponseWriter, code int, message string) {
	writeEnvelope(w, code, message, nil)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, 400, "invalid request body")
		return
	}

	userID, err := s.store.authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.logger.Warn("vaultsim: login rejected", "username", req.Username)
		writeFail(w, 401, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(s.secret, &auth.Claims{
		UserID:   userID,
		Username: req.Username,
	}, sessionTTL)
	if err != nil {
		writeFail(w, 500, "token generation failed")
		return
	}
	writeData(w, 200, map[string]string{"access_token": token})
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var d draftIn
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeFail(w, 400, "invalid request body")
		return
	}
	if d.PlatformName == "" {
		writeFail(w, 400, "platform_name is required")
		return
	}
	if d.EmailAddress == "" && d.LoginUsername == "" {
		writeFail(w, 400, "email_address or login_username is required")
		return
	}
	if d.LoginPassword != "" && len(d.LoginPassword) < minPasswordLen {
		writeFail(w, 400, "login_password too short")
		return
	}

	existingID, err := s.store.findDuplicate(r.Context(), d)
	if err != nil {
		writeFail(w, 500, err.Error())
		return
	}
	if existingID != 0 {
		writeEnvelope(w, http.StatusConflict, "registration already exists", map[string]any{
			"message":       "registration already exists for this platform and identity",
			"existing_id":   existingID,
			"conflict_type": "duplicate_registration",
			"can_update":    true,
		})
		return
	}

	reg, err := s.store.create(r.Context(), d)
	if err != nil {
		writeFail(w, 500, err.Error())
		return
	}
	s.logger.Info("vaultsim: registration created", "id", reg.ID, "platform", reg.PlatformName)
	writeData(w, 200, reg)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	regs, err := s.store.list(r.Context())
	if err != nil {
		writeFail(w, 500, err.Error())
		return
	}
	writeData(w, 200, regs)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reg, err := s.store.get(r.Context(), id)
	if err == errNotFound {
		writeFail(w, 404, "registration not found")
		return
	}
	if err != nil {
		writeFail(w, 500, err.Error())
		return
	}
	writeData(w, 200, reg)
}

func (s *server) handlePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pw, err := s.store.password(r.Context(), id)
	if err == errNotFound {
		writeFail(w, 404, "registration not found")
		return
	}
	if err != nil {
		writeFail(w, 500, err.Error())
		return
	}
	writeData(w, 200, map[string]string{"password": pw})
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var d draftIn
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeFail(w, 400, "invalid request body")
		return
	}
	if d.LoginPassword != "" && len(d.LoginPassword) < minPasswordLen {
		writeFail(w, 400, "login_password too short")
		return
	}

	reg, err := s.store.update(r.Context(), id, d)
	if err == errNotFound {
		writeFail(w, 404, "registration not found")
		return
	}
	if err != nil {
		writeFail(w, 500, err.Error())
		return
	}
	s.logger.Info("vaultsim: registration updated", "id", id)
	writeData(w, 200, reg)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := s.store.delete(r.Context(), id)
	if err == errNotFound {
		writeFail(w, 404, "registration not found")
		return
	}
	if err != nil {
		writeFail(w, 500, err.Error())
		return
	}
	s.logger.Info("vaultsim: registration deleted", "id", id)
	writeData(w, 200, map[string]string{"status": "deleted"})
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeFail(w, 400, "invalid registration id")
		return 0, false
	}
	return id, true
}
