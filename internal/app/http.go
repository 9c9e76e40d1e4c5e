package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"notebook/api/internal/authpw"
	"notebook/api/internal/logging"
	"notebook/api/internal/ordering"
	"notebook/api/internal/realtime"
	"notebook/api/internal/search"
	"notebook/api/internal/store"
	"notebook/api/internal/util"
)

const maxBodyBytes = 4 << 20

type HTTPServer struct {
	service    *Service
	push       *realtime.Handler
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, push *realtime.Handler, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		service:    service,
		push:       push,
		corsOrigin: corsOrigin,
		logger:     logging.Component(logger, "http"),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return newCORS(s.corsOrigin).Handler(s.withMiddleware(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeData(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeData(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeData(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"account_id":    session.AccountID,
			"display_name":  session.DisplayName,
			"email":         session.Email,
			"expires_at":    session.ExpiresAt.UTC(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, sessionJSON(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = decodeBody(r, &body)
		if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
			s.logger.Warn().Err(err).Msg("logout")
		}
		writeData(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/ws" {
		token := bearerToken(r)
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		s.push.Serve(w, r, session.AccountID)
		return
	}

	if r.Method == http.MethodPut && (r.URL.Path == "/api/positions/update" || r.URL.Path == "/positions/update") {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		s.handleReorder(w, r, session)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch parts[1] {
	case "pages":
		s.handlePages(w, r, session, parts[2:])
	case "folders":
		s.handleFolders(w, r, session, parts[2:])
	case "tree":
		if r.Method != http.MethodGet || len(parts) != 2 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		tree, err := s.service.Tree(r.Context(), session)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"items": tree})
	case "search":
		if r.Method != http.MethodGet || len(parts) != 2 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		s.handleSearch(w, r, session)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeData(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type moveRequest struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Position *int    `json:"position"`
	ParentID *string `json:"parent_id"`
}

func (s *HTTPServer) handleReorder(w http.ResponseWriter, r *http.Request, session Session) {
	var body []moveRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "body must be an array of moves", nil)
		return
	}

	moves := make([]ordering.Move, 0, len(body))
	for i, item := range body {
		if item.Position == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "position is required", map[string]any{"index": i, "id": item.ID})
			return
		}
		moves = append(moves, ordering.Move{
			ID:       strings.TrimSpace(item.ID),
			Kind:     ordering.Kind(item.Type),
			Position: *item.Position,
			ParentID: item.ParentID,
		})
	}

	positions, err := s.service.Reorder(r.Context(), session, moves)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"pages":   itemsJSON(positions.Pages),
		"folders": itemsJSON(positions.Folders),
	})
}

func (s *HTTPServer) handlePages(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			pages, err := s.service.ListPages(ctx, session)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			items := make([]map[string]any, 0, len(pages))
			for _, page := range pages {
				items = append(items, pageJSON(page, false))
			}
			writeData(w, http.StatusOK, map[string]any{"items": items})
		case http.MethodPost:
			var body CreatePageInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			page, err := s.service.CreatePage(ctx, session, body)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			writeData(w, http.StatusCreated, pageJSON(page, true))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	pageID := rest[0]

	switch r.Method {
	case http.MethodGet:
		page, err := s.service.GetPage(ctx, session, pageID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, pageJSON(page, true))
	case http.MethodPatch:
		var body UpdatePageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		page, err := s.service.UpdatePage(ctx, session, pageID, body)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, pageJSON(page, true))
	case http.MethodDelete:
		if err := s.service.DeletePage(ctx, session, pageID); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"id": pageID, "deleted": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleFolders(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			folders, err := s.service.ListFolders(ctx, session)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			items := make([]map[string]any, 0, len(folders))
			for _, folder := range folders {
				items = append(items, folderJSON(folder))
			}
			writeData(w, http.StatusOK, map[string]any{"items": items})
		case http.MethodPost:
			var body CreateFolderInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			folder, err := s.service.CreateFolder(ctx, session, body)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			writeData(w, http.StatusCreated, folderJSON(folder))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	folderID := rest[0]

	switch r.Method {
	case http.MethodPatch:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		folder, err := s.service.RenameFolder(ctx, session, folderID, body.Name)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, folderJSON(folder))
	case http.MethodDelete:
		if err := s.service.DeleteFolder(ctx, session, folderID); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"id": folderID, "deleted": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	params := r.URL.Query()
	q := search.Query{
		Text:       strings.TrimSpace(params.Get("q")),
		FilterType: search.ResultType(params.Get("type")),
	}
	if q.FilterType != "" && q.FilterType != search.ResultPage && q.FilterType != search.ResultFolder {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be page or folder", nil)
		return
	}
	q.Limit, _ = strconv.Atoi(params.Get("limit"))
	q.Offset, _ = strconv.Atoi(params.Get("offset"))

	writeData(w, http.StatusOK, s.service.Search(r.Context(), session, q))
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, sessionJSON(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sessionJSON(session))
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		s.respondError(w, r, err)
		return Session{}, false
	}
	return session, true
}

// respondError writes the mapped error body. Server errors are logged with
// their cause, which the client never sees.
func (s *HTTPServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = util.NewID("req")
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", reqID)

		next.ServeHTTP(writer, r)

		s.logger.Info().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

func newCORS(origin string) *cors.Cors {
	options := cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	}
	if origin == "" || origin == "*" {
		options.AllowOriginFunc = func(string) bool { return true }
	} else {
		options.AllowedOrigins = strings.Split(origin, ",")
		options.AllowCredentials = true
	}
	return cors.New(options)
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade reach the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func sessionJSON(session Session) map[string]any {
	return map[string]any{
		"token":         session.Token,
		"refresh_token": session.RefreshToken,
		"account_id":    session.AccountID,
		"display_name":  session.DisplayName,
		"email":         session.Email,
		"expires_at":    session.ExpiresAt.UTC(),
	}
}

func itemsJSON(items []ordering.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":         item.ID,
			"type":       string(item.Kind),
			"parent_id":  item.ParentID,
			"position":   item.Position,
			"title":      item.Title,
			"updated_at": item.UpdatedAt.UTC(),
		})
	}
	return out
}

func pageJSON(page store.Page, withContent bool) map[string]any {
	out := map[string]any{
		"id":         page.ID,
		"title":      page.Title,
		"parent_id":  page.ParentID,
		"position":   page.Position,
		"created_at": page.CreatedAt.UTC(),
		"updated_at": page.UpdatedAt.UTC(),
	}
	if withContent && page.Content != "" {
		out["content"] = json.RawMessage(page.Content)
	}
	return out
}

func folderJSON(folder store.Folder) map[string]any {
	return map[string]any{
		"id":         folder.ID,
		"name":       folder.Name,
		"parent_id":  folder.ParentID,
		"position":   folder.Position,
		"created_at": folder.CreatedAt.UTC(),
		"updated_at": folder.UpdatedAt.UTC(),
	}
}
