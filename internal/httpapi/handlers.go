package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"vectorindex/internal/service"
)

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	name := collectionOrDefault(r)
	stats, err := a.svc.Stats(name)
	if err != nil {
		a.writeError(w, opID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dim":         stats.Dimension,
		"num_vectors": stats.NumVectors,
	})
}

type collectionSummaryBody struct {
	Name       string `json:"name"`
	Dimension  int    `json:"dimension"`
	NumVectors int    `json:"num_vectors"`
	CreatedAt  int64  `json:"created_at"`
}

func (a *API) handleListCollections(w http.ResponseWriter, r *http.Request) {
	list := a.svc.ListCollections()
	out := make([]collectionSummaryBody, len(list))
	for i, s := range list {
		out[i] = collectionSummaryBody{Name: s.Name, Dimension: s.Dimension, NumVectors: s.NumVectors, CreatedAt: s.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"collections": out})
}

func (a *API) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	var req struct {
		Name      string `json:"name"`
		Dimension int    `json:"dimension"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, opID, err)
		return
	}
	created, err := a.svc.CreateCollection(req.Name, req.Dimension)
	if err != nil {
		a.writeError(w, opID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "created", "dimension": created.Dimension})
}

func (a *API) handleDropCollection(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	name := mux.Vars(r)["name"]
	if err := a.svc.DropCollection(name); err != nil {
		a.writeError(w, opID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
}

func (a *API) handleUpsert(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	collection := collectionOrDefault(r)
	var req struct {
		ID       string                 `json:"id"`
		Vector   []float32              `json:"vector"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, opID, err)
		return
	}
	if _, err := a.svc.Upsert(collection, req.ID, req.Vector, req.Metadata); err != nil {
		a.writeError(w, opID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok", "id": req.ID, "dimension": len(req.Vector),
	})
}

func (a *API) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	collection := collectionOrDefault(r)
	var req struct {
		Items []struct {
			ID       string                 `json:"id"`
			Vector   []float32              `json:"vector"`
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, opID, err)
		return
	}
	items := make([]service.BulkItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.BulkItem{ID: it.ID, Vector: it.Vector, Metadata: it.Metadata}
	}
	inserted, failed := a.svc.BulkUpsert(collection, items)
	failedBody := make([]map[string]string, len(failed))
	for i, f := range failed {
		failedBody[i] = map[string]string{"id": f.ID, "reason": f.Reason}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"inserted": inserted, "failed": failedBody})
}

func (a *API) handleGetVector(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	collection := collectionOrDefault(r)
	id := mux.Vars(r)["id"]
	rec, err := a.svc.Get(collection, id)
	if err != nil {
		a.writeError(w, opID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": rec.ID, "vector": rec.Vector, "metadata": rec.Metadata,
	})
}

func (a *API) handleDeleteVector(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	collection := collectionOrDefault(r)
	id := mux.Vars(r)["id"]
	if err := a.svc.Delete(collection, id); err != nil {
		a.writeError(w, opID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	collection := collectionOrDefault(r)
	var req struct {
		Vector   []float32              `json:"vector"`
		TopK     *int                   `json:"top_k"`
		Metric   string                 `json:"metric"`
		Filter   map[string]interface{} `json:"filter"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, opID, err)
		return
	}
	k := 5
	if req.TopK != nil {
		k = *req.TopK
	}
	results, err := a.svc.Search(r.Context(), service.SearchParams{
		Collection: collection,
		Query:      req.Vector,
		K:          k,
		Metric:     req.Metric,
		Filter:     req.Filter,
	})
	if err != nil {
		a.writeError(w, opID, err)
		return
	}
	out := make([]map[string]interface{}, len(results))
	for i, res := range results {
		entry := map[string]interface{}{"id": res.ID, "score": res.Score}
		if res.Metadata != nil {
			entry["metadata"] = res.Metadata
		}
		out[i] = entry
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

func (a *API) handleSave(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	seq, err := a.svc.SaveSnapshot()
	if err != nil {
		a.writeError(w, opID, err)
		return
	}
	a.logger.WithOp(opID).Info("snapshot saved at sequence %d", seq)
	writeJSON(w, http.StatusOK, map[string]uint64{"sequence": seq})
}

func (a *API) handleLoad(w http.ResponseWriter, r *http.Request) {
	opID := newOpID()
	seq, err := a.svc.LoadSnapshot(r.Context())
	if err != nil {
		a.writeError(w, opID, err)
		return
	}
	a.logger.WithOp(opID).Info("state reloaded through sequence %d", seq)
	writeJSON(w, http.StatusOK, map[string]uint64{"restored_sequence": seq})
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	a.svc.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

