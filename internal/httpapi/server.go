// Package httpapi exposes the façade of internal/hiddb over the HTTP route
// table: collection and index CRUD, document insert/search/fetch, health,
// and metrics. Routing follows the teacher's net/http ServeMux + middleware
// chain (logging, recovery, Prometheus) rather than a third-party router.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/orneryd/hiddb/internal/hiddb"
	"github.com/orneryd/hiddb/internal/metrics"
)

// MaxRequestSize bounds the body read for any request that carries one.
const MaxRequestSize = 10 << 20 // 10MB

// Server wraps the façade in an HTTP handler.
type Server struct {
	db      *hiddb.DB
	metrics *metrics.Registry
	addr    string
	srv     *http.Server
}

// New builds a server bound to addr, serving db through the route table.
func New(db *hiddb.DB, addr string, m *metrics.Registry) *Server {
	s := &Server{db: db, metrics: m, addr: addr}
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.buildRouter(),
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("hiddb listening on %s", s.addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.metrics.Handler().ServeHTTP)

	mux.HandleFunc("GET /collection", s.handleListCollections)
	mux.HandleFunc("POST /collection", s.handleCreateCollection)
	mux.HandleFunc("GET /collection/{name}", s.handleGetCollection)
	mux.HandleFunc("DELETE /collection/{name}", s.handleDeleteCollection)

	mux.HandleFunc("GET /collection/{name}/index", s.handleListIndices)
	mux.HandleFunc("POST /collection/{name}/index", s.handleCreateIndex)
	mux.HandleFunc("GET /collection/{name}/index/{field}", s.handleGetIndex)
	mux.HandleFunc("DELETE /collection/{name}/index/{field}", s.handleDeleteIndex)

	mux.HandleFunc("POST /collection/{name}/document", s.handleInsertDocuments)
	mux.HandleFunc("POST /collection/{name}/document/search", s.handleSearchDocuments)
	mux.HandleFunc("GET /collection/{name}/document/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /collection/{name}/document/{id}", s.handleDeleteDocument)

	handler := s.loggingMiddleware(mux)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	return handler
}

// --- middleware ----------------------------------------------------------

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if r.URL.Path != "/health" {
			log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				log.Printf("PANIC: %v\n%s", err, buf[:n])
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.metrics.ObserveRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}

// --- JSON helpers ----------------------------------------------------------

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, MaxRequestSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	})
}

// writeFacadeError maps a façade error to its HTTP status per the error
// handling design: identity collisions 400, absence 404, unsupported
// operations 501, anything else opaque 500.
func (s *Server) writeFacadeError(w http.ResponseWriter, err error) {
	var alreadyExists *hiddb.AlreadyExistsError
	var doesNotExist *hiddb.DoesNotExistError
	var dimensionMismatch *hiddb.DimensionMismatchError
	var missingField *hiddb.MissingFieldError
	var invalidInput *hiddb.InvalidInputError
	var notImplemented *hiddb.NotImplementedError

	switch {
	case errors.As(err, &alreadyExists):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &doesNotExist):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &dimensionMismatch):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &missingField):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notImplemented):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- handlers --------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.db.ListCollections()
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"collections": collections})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CollectionName string `json:"collection_name"`
	}
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	info, err := s.db.CreateCollection(body.CollectionName)
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	info, err := s.db.GetCollection(r.PathValue("name"))
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	info, err := s.db.DeleteCollection(r.PathValue("name"))
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListIndices(w http.ResponseWriter, r *http.Request) {
	indices, err := s.db.ListIndices(r.PathValue("name"))
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"indices": indices})
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FieldName string `json:"field_name"`
		Dimension int    `json:"dimension"`
	}
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	info, err := s.db.CreateIndex(r.PathValue("name"), body.FieldName, body.Dimension)
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	info, err := s.db.GetIndex(r.PathValue("name"), r.PathValue("field"))
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteIndex(r.PathValue("name"), r.PathValue("field")); err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleInsertDocuments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Documents []json.RawMessage `json:"documents"`
	}
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.db.InsertDocuments(r.Context(), r.PathValue("name"), body.Documents); err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"inserted": true})
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FieldName    string      `json:"field_name"`
		Vectors      [][]float64 `json:"vectors"`
		IDs          []string    `json:"ids"`
		MaxNeighbors int         `json:"max_neighbors"`
	}
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	data, err := s.db.SearchDocuments(r.Context(), r.PathValue("name"), hiddb.SearchRequest{
		FieldName:    body.FieldName,
		Vectors:      body.Vectors,
		IDs:          body.IDs,
		MaxNeighbors: body.MaxNeighbors,
	})
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		s.writeError(w, http.StatusBadRequest, "missing document id")
		return
	}
	doc, err := s.db.GetDocumentByID(r.PathValue("name"), id)
	if err != nil {
		s.writeFacadeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// handleDeleteDocument always reports 501: the source leaves document
// deletion unimplemented, and this surface preserves that stance.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotImplemented, "document deletion not implemented")
}
