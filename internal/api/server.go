package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"goalseek/internal/auth"
	"goalseek/internal/goal"
	"goalseek/internal/intervention"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// ConnectionCounter is the slice of the connection registry the API needs.
// Declared here to avoid coupling to the websocket package implementation.
type ConnectionCounter interface {
	Count() int
}

// Server is the HTTP surface: intervention resolution, goal store CRUD, and
// status/health. No business logic lives here, only HTTP handling and JSON
// serialization.
type Server struct {
	broker      *intervention.Broker
	goalManager *goal.Manager
	dbManager   interfaces.DatabaseManager
	verifier    interfaces.TokenVerifier
	connections ConnectionCounter
	router      *http.ServeMux
}

// NewServer creates a new API server with all routes configured
func NewServer(broker *intervention.Broker, goalManager *goal.Manager, dbManager interfaces.DatabaseManager, verifier interfaces.TokenVerifier, connections ConnectionCounter) *Server {
	s := &Server{
		broker:      broker,
		goalManager: goalManager,
		dbManager:   dbManager,
		verifier:    verifier,
		connections: connections,
		router:      http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/goal-seek/interventions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleInterventions))))
	s.router.Handle("/api/goal-seek/interventions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleInterventionRespond))))
	s.router.Handle("/api/goal-seek/goals", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleGoals))))
	s.router.Handle("/api/goal-seek/goals/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleGoalByID))))
	s.router.Handle("/api/goal-seek/status", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStatus))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type RespondRequest struct {
	InterventionID string `json:"interventionId"`
	Choice         string `json:"choice"`
	Reason         string `json:"reason,omitempty"`
}

type RespondResponse struct {
	InterventionID string `json:"interventionId"`
	GoalID         string `json:"goalId,omitempty"`
	Choice         string `json:"choice"`
	Acknowledged   bool   `json:"acknowledged"`
}

type CreateGoalRequest struct {
	SessionID string                 `json:"sessionId"`
	GoalType  string                 `json:"goalType"`
	Target    map[string]interface{} `json:"target"`
	Current   map[string]interface{} `json:"current"`
}

type UpdateGoalRequest struct {
	Status     string                 `json:"status,omitempty"`
	Phase      string                 `json:"phase,omitempty"`
	Current    map[string]interface{} `json:"current,omitempty"`
	ActionPlan []string               `json:"actionPlan,omitempty"`
}

type AppendLogRequest struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

type StatusResponse struct {
	ActiveConnections    int `json:"activeConnections"`
	PendingInterventions int `json:"pendingInterventions"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// authenticate resolves the bearer token on an HTTP request to an identity
func (s *Server) authenticate(r *http.Request) (types.Identity, error) {
	token := auth.ExtractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return types.Identity{}, interfaces.ErrTokenMissing
	}
	return s.verifier.VerifyToken(r.Context(), token)
}

// handleInterventionRespond serves POST /api/goal-seek/interventions/{goalId}/respond.
// FUNCTIONAL DISCOVERY: This is the out-of-band resolution channel; it runs
// through the same broker call as the socket path, so exactly-once holds
// across both regardless of which one a client races first
func (s *Server) handleInterventionRespond(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/goal-seek/interventions/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "respond" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	goalID := parts[0]

	switch r.Method {
	case http.MethodPost:
		// handled below
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.authenticate(r)
	if err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.InterventionID == "" {
		s.sendError(w, "interventionId is required", http.StatusBadRequest)
		return
	}
	if !types.IsValidChoice(req.Choice) {
		s.sendError(w, "choice must be one of proceed, abort, modify", http.StatusBadRequest)
		return
	}

	resolved, err := s.broker.Resolve(req.InterventionID, identity, req.Choice, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, intervention.ErrNotFound), errors.Is(err, intervention.ErrExpired):
			s.sendError(w, "Intervention not found or expired", http.StatusNotFound)
		case errors.Is(err, intervention.ErrNotOwner):
			s.sendError(w, "Intervention belongs to another user", http.StatusForbidden)
		default:
			s.sendError(w, "Failed to resolve intervention", http.StatusInternalServerError)
		}
		return
	}

	// Push notification to the owner socket, source-tagged so the client can
	// tell the two resolution channels apart. The socket may be gone: push
	// failure is expected, the HTTP response is the authoritative outcome.
	s.pushToOwner(resolved, req)

	json.NewEncoder(w).Encode(RespondResponse{
		InterventionID: req.InterventionID,
		GoalID:         goalID,
		Choice:         req.Choice,
		Acknowledged:   true,
	})
}

func (s *Server) pushToOwner(resolved *intervention.Resolved, req RespondRequest) {
	if resolved.Owner == nil {
		return
	}

	if err := resolved.Owner.WriteJSON(&types.Envelope{
		Type:           types.MessageTypeInterventionAcknowledged,
		CorrelationID:  resolved.CorrelationID,
		InterventionID: req.InterventionID,
		Choice:         req.Choice,
		Source:         "http",
	}); err != nil {
		log.Printf("Failed to push acknowledgement to %s: %v", resolved.OwnerUserID, err)
		return
	}

	if req.Choice == types.ChoiceProceed {
		if err := resolved.Owner.WriteJSON(&types.Envelope{
			Type:          types.MessageTypeCompleted,
			CorrelationID: resolved.CorrelationID,
			Result:        resolved.Result,
			Source:        "http",
		}); err != nil {
			log.Printf("Failed to push completed frame to %s: %v", resolved.OwnerUserID, err)
		}
	}
}

// handleInterventions serves GET /api/goal-seek/interventions?status=
func (s *Server) handleInterventions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := s.dbManager.ListInterventions(r.Context(), r.URL.Query().Get("status"))
		if err != nil {
			s.sendError(w, "Failed to list interventions", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []*types.InterventionRecord{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"interventions": records})
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGoals serves the goals collection (POST, GET with ?sessionId= filter)
func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createGoal(w, r)
	case http.MethodGet:
		s.listGoals(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGoalByID serves /api/goal-seek/goals/{id} and .../{id}/logs
func (s *Server) handleGoalByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/goal-seek/goals/")
	if path == "" {
		s.sendError(w, "Goal ID required", http.StatusBadRequest)
		return
	}

	parts := strings.Split(path, "/")
	goalID := parts[0]
	if goalID == "" {
		s.sendError(w, "Invalid goal ID", http.StatusBadRequest)
		return
	}

	if len(parts) == 2 && parts[1] == "logs" {
		s.handleGoalLogs(w, r, goalID)
		return
	}
	if len(parts) != 1 {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getGoal(w, r, goalID)
	case http.MethodPut:
		s.updateGoal(w, r, goalID)
	case http.MethodDelete:
		s.deleteGoal(w, r, goalID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createGoal(w http.ResponseWriter, r *http.Request) {
	var req CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		s.sendError(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if req.GoalType == "" {
		s.sendError(w, "goalType is required", http.StatusBadRequest)
		return
	}

	created, err := s.goalManager.CreateGoal(r.Context(), req.SessionID, req.GoalType, req.Target, req.Current)
	if err != nil {
		s.sendError(w, "Failed to create goal", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"goal": created})
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request, goalID string) {
	g, err := s.goalManager.GetGoal(r.Context(), goalID)
	if err != nil {
		if errors.Is(err, interfaces.ErrGoalNotFound) {
			s.sendError(w, "Goal not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get goal", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"goal": g})
}

func (s *Server) updateGoal(w http.ResponseWriter, r *http.Request, goalID string) {
	var req UpdateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updated, err := s.goalManager.UpdateGoal(r.Context(), goalID, req.Status, req.Phase, req.Current, req.ActionPlan)
	if err != nil {
		switch {
		case errors.Is(err, goal.ErrGoalNotFound):
			s.sendError(w, "Goal not found", http.StatusNotFound)
		case errors.Is(err, goal.ErrInvalidStatus):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			s.sendError(w, "Failed to update goal", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"goal": updated})
}

func (s *Server) deleteGoal(w http.ResponseWriter, r *http.Request, goalID string) {
	if err := s.goalManager.DeleteGoal(r.Context(), goalID); err != nil {
		if errors.Is(err, interfaces.ErrGoalNotFound) {
			s.sendError(w, "Goal not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to delete goal", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Goal deleted"})
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.goalManager.ListGoals(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		s.sendError(w, "Failed to list goals", http.StatusInternalServerError)
		return
	}
	if goals == nil {
		goals = []*types.Goal{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"goals": goals})
}

// handleGoalLogs serves GET/POST /api/goal-seek/goals/{id}/logs
func (s *Server) handleGoalLogs(w http.ResponseWriter, r *http.Request, goalID string) {
	switch r.Method {
	case http.MethodGet:
		logs, err := s.goalManager.ListLogs(r.Context(), goalID)
		if err != nil {
			s.sendError(w, "Failed to list logs", http.StatusInternalServerError)
			return
		}
		if logs == nil {
			logs = []*types.GoalLog{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"logs": logs})

	case http.MethodPost:
		var req AppendLogRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Message == "" {
			s.sendError(w, "message is required", http.StatusBadRequest)
			return
		}

		entry, err := s.goalManager.AppendLog(r.Context(), goalID, req.Level, req.Message)
		if err != nil {
			switch {
			case errors.Is(err, goal.ErrGoalNotFound):
				s.sendError(w, "Goal not found", http.StatusNotFound)
			case errors.Is(err, goal.ErrInvalidLogLevel):
				s.sendError(w, err.Error(), http.StatusBadRequest)
			default:
				s.sendError(w, "Failed to append log", http.StatusInternalServerError)
			}
			return
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"log": entry})

	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStatus serves GET /api/goal-seek/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(StatusResponse{
			ActiveConnections:    s.connections.Count(),
			PendingInterventions: s.broker.PendingCount(),
		})
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// healthCheck serves GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.dbManager.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// sendError writes a consistent error response shape
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware enables web client access; token auth is the real gate
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware ensures proper content-type headers on every API response
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
