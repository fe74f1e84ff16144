package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/qerr"
)

type handlers struct {
	svc    QueryService
	logger *zap.Logger
}

// connectionConfig is the wire form of a database connection descriptor.
type connectionConfig struct {
	DBType   string `json:"db_type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
}

type queryRequest struct {
	Config connectionConfig `json:"config"`
	Query  string           `json:"query"`
}

type testConnectionRequest struct {
	Config connectionConfig `json:"config"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error    errorBody `json:"error"`
	SQLQuery string    `json:"sql_query,omitempty"`
}

func (c connectionConfig) descriptor() database.Descriptor {
	dialect := strings.ToLower(strings.TrimSpace(c.DBType))
	// Accept the long form some clients send.
	if dialect == "postgresql" {
		dialect = "postgres"
	}
	return database.Descriptor{
		Dialect:  dialect,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.Username,
		Password: c.Password,
		DBName:   c.DBName,
	}
}

func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Kind: "bad_request", Message: "request body is not valid JSON"},
		})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Kind: "bad_request", Message: "query must not be empty"},
		})
		return
	}

	resp, err := h.svc.Handle(r.Context(), req.Config.descriptor(), req.Query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Kind: "bad_request", Message: "request body is not valid JSON"},
		})
		return
	}

	if err := h.svc.TestConnection(r.Context(), req.Config.descriptor()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps the error taxonomy onto HTTP statuses. The body carries
// only the sanitized kind and message; raw driver errors go to the log.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := qerr.KindOf(err)
	if kind == "" {
		kind = "internal_error"
	}
	resp := errorResponse{
		Error:    errorBody{Kind: string(kind), Message: err.Error()},
		SQLQuery: qerr.SQLOf(err),
	}
	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("kind", string(kind)),
		zap.Error(err))
	writeJSON(w, statusForKind(kind), resp)
}

func statusForKind(kind qerr.Kind) int {
	switch kind {
	case qerr.KindUnsafeQuery, qerr.KindQueryExecution:
		return http.StatusBadRequest
	case qerr.KindPermission:
		return http.StatusForbidden
	case qerr.KindTranslation, qerr.KindConnection:
		return http.StatusBadGateway
	case qerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
