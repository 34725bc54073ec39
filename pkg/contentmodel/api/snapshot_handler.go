package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/content-model/pkg/contentmodel/snapshot"
)

// SnapshotResponse is the response body of a saved or loaded snapshot
type SnapshotResponse struct {
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
}

// ListSnapshots lists the names of the stored snapshots
func (h *ConsoleHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if !h.snapshotsEnabled(w) {
		return
	}
	names, err := h.snapshots.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list snapshots", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	render.JSON(w, r, names)
}

// SaveSnapshot stores the current memory tree under the given name
func (h *ConsoleHandler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.snapshotsEnabled(w) {
		return
	}
	name := chi.URLParam(r, "name")
	doc := snapshot.Export(h.memory)
	if err := h.snapshots.Save(r.Context(), name, doc); err != nil {
		h.snapshotError(w, "save", name, err)
		return
	}

	h.logger.Info("Snapshot saved", "name", name, "nodes", len(doc.Nodes))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SnapshotResponse{Name: name, Nodes: len(doc.Nodes)})
}

// LoadSnapshot applies a stored snapshot onto the memory tree. Type
// definitions it changes invalidate the model lookup caches.
func (h *ConsoleHandler) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.snapshotsEnabled(w) {
		return
	}
	name := chi.URLParam(r, "name")
	doc, err := h.snapshots.Load(r.Context(), name)
	if err != nil {
		h.snapshotError(w, "load", name, err)
		return
	}
	if err := doc.Apply(h.memory); err != nil {
		h.logger.Error("Failed to apply snapshot", "name", name, "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	h.logger.Info("Snapshot loaded", "name", name, "nodes", len(doc.Nodes))
	render.JSON(w, r, SnapshotResponse{Name: name, Nodes: len(doc.Nodes)})
}

// DeleteSnapshot removes a stored snapshot
func (h *ConsoleHandler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.snapshotsEnabled(w) {
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.snapshots.Delete(r.Context(), name); err != nil {
		h.snapshotError(w, "delete", name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsoleHandler) snapshotsEnabled(w http.ResponseWriter) bool {
	if h.snapshots == nil || h.memory == nil {
		http.Error(w, "Snapshots are disabled", http.StatusNotFound)
		return false
	}
	return true
}

func (h *ConsoleHandler) snapshotError(w http.ResponseWriter, operation, name string, err error) {
	switch {
	case errors.Is(err, snapshot.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, snapshot.ErrNotFound):
		http.Error(w, "Snapshot not found", http.StatusNotFound)
	default:
		h.logger.Error("Snapshot operation failed", "operation", operation, "name", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
