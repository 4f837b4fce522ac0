package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/service"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
)

// defaultRuns is how many recent ingest runs /v1/status reports.
const defaultRuns = 10

type Dependencies struct {
	Logger logrus.FieldLogger
	Addr   string
	Schema *service.SchemaManager
}

// Server is the local admin API. It exposes status and the two privacy
// reductions; it never returns raw identifying values.
type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
	mux        *http.ServeMux
	schema     *service.SchemaManager
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger,
		mux:    mux,
		schema: d.Schema,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/kinds/{kind}/pseudonymize", s.handlePseudonymize)
	mux.HandleFunc("POST /v1/kinds/{kind}/anonymize", s.handleAnonymize)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs := defaultRuns
	if v := r.URL.Query().Get("runs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_runs", "runs must be a non-negative integer")
			return
		}
		runs = n
	}

	st, err := s.schema.Status(r.Context(), runs)
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	respond(w, r, http.StatusOK, statusBody(st))
}

func (s *Server) handlePseudonymize(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.confirmed(w, r)
	if !ok {
		return
	}

	state, err := s.schema.Pseudonymize(r.Context(), kind)
	if err != nil {
		s.fail(w, "pseudonymize", err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"kind": kind, "state": string(state)})
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.confirmed(w, r)
	if !ok {
		return
	}

	ks, err := s.schema.Anonymize(r.Context(), kind)
	if err != nil {
		s.fail(w, "anonymize", err)
		return
	}
	respond(w, r, http.StatusOK, kindBody(ks))
}

// confirmed returns the path's kind if the body repeats it as "confirm".
// Both reductions are irreversible.
func (s *Server) confirmed(w http.ResponseWriter, r *http.Request) (string, bool) {
	kind := r.PathValue("kind")

	var confirm string
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return "", false
		}
		confirm = msg.GetFields()["confirm"].GetStringValue()
	} else {
		var req struct {
			Confirm string `json:"confirm"`
		}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
			return "", false
		}
		confirm = req.Confirm
	}

	if confirm != kind {
		writeError(w, http.StatusBadRequest, "confirmation_required",
			`body must contain {"confirm": "`+kind+`"}`)
		return "", false
	}
	return kind, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownKind):
		writeError(w, http.StatusNotFound, "unknown_kind", err.Error())
	case errors.Is(err, service.ErrPrivacyReduced):
		writeError(w, http.StatusConflict, "privacy_reduced", err.Error())
	case errors.Is(err, store.ErrSchemaMismatch):
		writeError(w, http.StatusConflict, "schema_mismatch", err.Error())
	default:
		s.logger.WithError(err).WithField("op", op).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
