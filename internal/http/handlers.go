package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/storage"
)

// Server is a local stand-in for the fleet REST backend.
type Server struct {
	Accounts *storage.Accounts
	History  storage.HistoryStore
	logger   zerolog.Logger
	mux      *mux.Router

	mu     sync.RWMutex
	tokens map[string]int64
}

func NewServer(accounts *storage.Accounts, history storage.HistoryStore, logger zerolog.Logger) *Server {
	if accounts == nil {
		accounts = storage.NewAccounts()
	}
	if history == nil {
		history = storage.NewMemoryHistory()
	}
	s := &Server{
		Accounts: accounts,
		History:  history,
		logger:   logger.With().Str("component", "devbackend").Logger(),
		mux:      mux.NewRouter(),
		tokens:   make(map[string]int64),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// SeedAccount creates an account with a bcrypt hash of password.
func (s *Server) SeedAccount(name, email, password string, role models.Role) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	return s.Accounts.Create(name, email, hash, role)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	s.mux.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	s.mux.Handle("/logout", s.authed(s.handleLogout)).Methods(http.MethodPost)
	s.mux.Handle("/user", s.authed(s.handleUser)).Methods(http.MethodGet)
	s.mux.Handle("/user/location", s.authed(s.handleLocation)).Methods(http.MethodPost)
	s.mux.Handle("/user/change-status", s.authed(s.handleChangeStatus)).Methods(http.MethodPost)

	s.mux.HandleFunc("/drivers", s.listDrivers(nil)).Methods(http.MethodGet)
	online := func(u models.User) bool { return u.Status != models.StatusOffline }
	s.mux.HandleFunc("/online-drivers", s.listDrivers(online)).Methods(http.MethodGet)
	s.mux.HandleFunc("/map-drivers", s.listDrivers(online)).Methods(http.MethodGet)
	for _, st := range []models.Status{models.StatusAvailable, models.StatusBusy, models.StatusOffline} {
		keep := statusIs(st)
		s.mux.HandleFunc("/"+string(st)+"-drivers-filter", s.listDrivers(keep)).Methods(http.MethodGet)
		s.mux.HandleFunc("/"+string(st)+"-drivers-count", s.countDrivers(keep)).Methods(http.MethodGet)
	}

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func statusIs(st models.Status) func(models.User) bool {
	return func(u models.User) bool { return u.Status == st }
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(c.Name) == "" || !strings.Contains(c.Email, "@") || len(c.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "name, valid email and a password of at least 6 characters are required")
		return
	}
	u, err := s.SeedAccount(c.Name, c.Email, c.Password, models.RoleDriver)
	if errors.Is(err, storage.ErrEmailTaken) {
		writeError(w, http.StatusUnprocessableEntity, "email already registered")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("register failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": s.issueToken(u.ID)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	acc, err := s.Accounts.ByEmail(c.Email)
	if err != nil || bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(c.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.issueToken(acc.ID)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ int64) {
	s.mu.Lock()
	delete(s.tokens, bearerToken(r))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request, userID int64) {
	u, err := s.Accounts.ByID(userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request, userID int64) {
	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Latitude == nil || body.Longitude == nil {
		writeError(w, http.StatusUnprocessableEntity, "latitude and longitude are required")
		return
	}
	if err := s.Accounts.SetLocation(userID, *body.Latitude, *body.Longitude); err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	ev := models.LocationEvent{DriverID: userID, Latitude: *body.Latitude, Longitude: *body.Longitude, RecordedAt: time.Now().UTC()}
	if err := s.History.AppendSample(r.Context(), ev); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Int64("driver_id", userID).Msg("history append failed")
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "location updated"})
}

func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request, userID int64) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	st, err := models.ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.Accounts.SetStatus(userID, st); err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "status updated"})
}

func (s *Server) listDrivers(keep func(models.User) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Accounts.Drivers(keep))
	}
}

func (s *Server) countDrivers(keep func(models.User) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, len(s.Accounts.Drivers(keep)))
	}
}

func (s *Server) issueToken(userID int64) string {
	tok := uuid.NewString()
	s.mu.Lock()
	s.tokens[tok] = userID
	s.mu.Unlock()
	return tok
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID int64)

func (s *Server) authed(h authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		s.mu.RLock()
		id, ok := s.tokens[tok]
		s.mu.RUnlock()
		if tok == "" || !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		h(w, r, id)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
