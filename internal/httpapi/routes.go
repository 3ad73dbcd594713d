package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rainfall-dashboard/internal/auth"
	"rainfall-dashboard/internal/metrics"
	"rainfall-dashboard/internal/rainfall"
	"rainfall-dashboard/internal/storage"
)

const maxBodyBytes = 1 << 20

type jsonResponse map[string]any

type errorResponse struct {
	Error string `json:"error"`
}

type Options struct {
	// AllowAdminRegistration lets /register create admin accounts.
	AllowAdminRegistration bool
	Logger                 *slog.Logger
	Metrics                *metrics.HTTP
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	store  storage.Store
	tokens *auth.Manager
	opts   Options
	logger *slog.Logger
}

func NewServer(store storage.Store, tokens *auth.Manager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewHTTP(nil)
	}
	return &Server{store: store, tokens: tokens, opts: opts, logger: logger}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/register", s.handleRegister)
	mux.Handle("/data", s.tokens.Middleware(http.HandlerFunc(s.handleData)))
	mux.Handle("/data/{id}", s.tokens.Middleware(http.HandlerFunc(s.handleRecord)))
	mux.Handle("/analytics", s.tokens.Middleware(http.HandlerFunc(s.handleAnalytics)))
	mux.Handle("/export", s.tokens.Middleware(http.HandlerFunc(s.handleExport)))
	mux.HandleFunc("/healthz", handleHealthz)
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the full route table behind the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.withRequestLogging(mux)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var payload credentials
	if err := decodeJSON(w, r, &payload); err != nil {
		s.logger.Debug("login decode error", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(payload.Username) == "" || payload.Password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Username and password are required"})
		return
	}
	user, err := s.store.UserByName(r.Context(), payload.Username)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid credentials"})
		return
	}
	if err != nil {
		s.internalError(w, r, "login lookup", err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, payload.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password check failed", "user", user.Username, "error", err)
		}
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid credentials"})
		return
	}
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.internalError(w, r, "issue token", err)
		return
	}
	s.logger.Info("user logged in", "user", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, jsonResponse{
		"token": token,
		"role":  user.Role,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var payload credentials
	if err := decodeJSON(w, r, &payload); err != nil {
		s.logger.Debug("register decode error", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	username := strings.TrimSpace(payload.Username)
	if username == "" || payload.Password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Username and password are required"})
		return
	}
	role := strings.ToLower(strings.TrimSpace(payload.Role))
	if role == "" {
		role = auth.RoleUser
	}
	if role != auth.RoleUser && role != auth.RoleAdmin {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Role must be user or admin"})
		return
	}
	if role == auth.RoleAdmin && !s.opts.AllowAdminRegistration {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "Admin registration is disabled"})
		return
	}
	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		s.internalError(w, r, "hash password", err)
		return
	}
	_, err = s.store.CreateUser(r.Context(), storage.User{Username: username, PasswordHash: hash, Role: role})
	if errors.Is(err, storage.ErrDuplicateUser) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Username already exists"})
		return
	}
	if err != nil {
		s.internalError(w, r, "create user", err)
		return
	}
	s.logger.Info("user registered", "user", username, "role", role)
	writeJSON(w, http.StatusCreated, jsonResponse{})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := s.store.ListRecords(r.Context())
		if err != nil {
			s.internalError(w, r, "list records", err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	case http.MethodPost:
		auth.RequireAdmin(http.HandlerFunc(s.createRecord)).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	input, ok := s.readInput(w, r)
	if !ok {
		return
	}
	record, err := s.store.CreateRecord(r.Context(), input)
	if errors.Is(err, storage.ErrDuplicateYear) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Year already exists"})
		return
	}
	if err != nil {
		s.internalError(w, r, "create record", err)
		return
	}
	s.logger.Info("record created", "id", record.ID, "year", record.Year)
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		auth.RequireAdmin(http.HandlerFunc(s.updateRecord)).ServeHTTP(w, r)
	case http.MethodDelete:
		auth.RequireAdmin(http.HandlerFunc(s.deleteRecord)).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := rainfall.ParseRecordID(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Data not found"})
		return
	}
	input, ok := s.readInput(w, r)
	if !ok {
		return
	}
	record, err := s.store.UpdateRecord(r.Context(), id, input)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Data not found"})
		return
	case errors.Is(err, storage.ErrDuplicateYear):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Year already exists"})
		return
	case err != nil:
		s.internalError(w, r, "update record", err)
		return
	}
	s.logger.Info("record updated", "id", record.ID, "year", record.Year)
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := rainfall.ParseRecordID(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Data not found"})
		return
	}
	err := s.store.DeleteRecord(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Data not found"})
		return
	}
	if err != nil {
		s.internalError(w, r, "delete record", err)
		return
	}
	s.logger.Info("record deleted", "id", id)
	writeJSON(w, http.StatusOK, jsonResponse{})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.store.Analytics(r.Context())
	if err != nil {
		s.internalError(w, r, "analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	records, err := s.store.ListRecords(r.Context())
	if err != nil {
		s.internalError(w, r, "export records", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rainfall.ExportFilename))
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"Year", "Amount"})
	for _, record := range records {
		_ = writer.Write([]string{
			strconv.Itoa(record.Year),
			strconv.FormatFloat(record.Amount, 'f', -1, 64),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		s.logger.Warn("export write failed", "error", err)
	}
}

type recordInput struct {
	Year   *int     `json:"year"`
	Amount *float64 `json:"amount"`
}

// readInput decodes and validates a record body, writing the error response
// itself when the body is unusable.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (rainfall.Input, bool) {
	var payload recordInput
	if err := decodeJSON(w, r, &payload); err != nil {
		s.logger.Debug("record decode error", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return rainfall.Input{}, false
	}
	if payload.Year == nil || payload.Amount == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Year and amount are required"})
		return rainfall.Input{}, false
	}
	if *payload.Amount < 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Amount cannot be negative"})
		return rainfall.Input{}, false
	}
	return rainfall.Input{Year: *payload.Year, Amount: *payload.Amount}, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.logger.Error(action+" failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(payload)
}
