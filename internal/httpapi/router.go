// Package httpapi is the thin JSON-over-HTTP wire layer: decode
// request -> call service.Service -> map result or *apierr.Error to a
// response. Routed with gorilla/mux for path parameters.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"vectorindex/internal/apierr"
	"vectorindex/internal/logging"
	"vectorindex/internal/registry"
	"vectorindex/internal/service"
)

// API wires a service.Service to an HTTP router.
type API struct {
	svc    *service.Service
	logger logging.Logger
}

// New builds the router for svc.
func New(svc *service.Service, logger logging.Logger) http.Handler {
	a := &API{svc: svc, logger: logger}
	r := mux.NewRouter()
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/collections", a.handleListCollections).Methods(http.MethodGet)
	r.HandleFunc("/collections", a.handleCreateCollection).Methods(http.MethodPost)
	r.HandleFunc("/collections/{name}", a.handleDropCollection).Methods(http.MethodDelete)
	r.HandleFunc("/vectors/bulk", a.handleBulkUpsert).Methods(http.MethodPost)
	r.HandleFunc("/vectors", a.handleUpsert).Methods(http.MethodPost)
	r.HandleFunc("/vectors/{id}", a.handleGetVector).Methods(http.MethodGet)
	r.HandleFunc("/vectors/{id}", a.handleDeleteVector).Methods(http.MethodDelete)
	r.HandleFunc("/search", a.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/save", a.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/load", a.handleLoad).Methods(http.MethodPost)
	r.HandleFunc("/clear", a.handleClear).Methods(http.MethodDelete)
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func collectionOrDefault(r *http.Request) string {
	name := r.URL.Query().Get("collection")
	if name == "" {
		return registry.DefaultCollection
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the fixed {"error":..., "code":...} shape every non-2xx
// response uses.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.CollectionAlreadyExists:
		return http.StatusConflict
	case apierr.CollectionNotFound, apierr.RecordNotFound:
		return http.StatusNotFound
	case apierr.CorruptSnapshot, apierr.IOFailure:
		return http.StatusInternalServerError
	case apierr.Cancelled:
		// Client closed request; nginx's non-standard 499 is the
		// conventional code for it.
		return 499
	default:
		return http.StatusBadRequest
	}
}

func (a *API) writeError(w http.ResponseWriter, opID string, err error) {
	opLogger := a.logger.WithOp(opID)
	if se, ok := err.(*apierr.Error); ok {
		opLogger.Warn("%s: %s", se.Kind, se.Message)
		writeJSON(w, statusForKind(se.Kind), errorBody{Error: se.Message, Code: string(se.Kind)})
		return
	}
	opLogger.Error("unexpected error: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Code: string(apierr.IOFailure)})
}

func newOpID() string {
	return uuid.NewString()
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apierr.New(apierr.BadRequest, "missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apierr.New(apierr.BadRequest, "malformed JSON body: "+err.Error())
	}
	return nil
}
