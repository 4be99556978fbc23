package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/idleforge/idlesync/pkg/api/middleware"
	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/log"
	"github.com/idleforge/idlesync/pkg/repositories"
	"github.com/idleforge/idlesync/pkg/snapshot"
	syncpkg "github.com/idleforge/idlesync/pkg/sync"
)

// PushRequest is the body of a sync push. BaseVersion is the stored
// version the device last saw (0 on a first push) and ElapsedMs is the
// device-reported time since the previous accepted snapshot.
type PushRequest struct {
	Snapshot    *snapshot.Snapshot `json:"snapshot"`
	BaseVersion int64              `json:"baseVersion"`
	ElapsedMs   int64              `json:"elapsedMs"`
}

// ConflictChoiceRequest is the body of a conflict choice submission.
type ConflictChoiceRequest struct {
	Conflict conflict.SyncConflict `json:"conflict"`
	Choice   string                `json:"choice"`
}

func HandlePush(service *syncpkg.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			log.Error("failed to get identity from context")
			http.Error(w, "Failed to get identity from context", http.StatusInternalServerError)
			return
		}

		var req PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error("failed to decode push request: %v", err)
			http.Error(w, "Failed to decode push request", http.StatusBadRequest)
			return
		}
		if req.Snapshot == nil {
			http.Error(w, "Snapshot is required", http.StatusBadRequest)
			return
		}

		result, err := service.Push(r.Context(), identity, req.Snapshot, req.BaseVersion, req.ElapsedMs)
		if err != nil {
			switch {
			case syncpkg.IsRejected(err):
				writeJSON(w, http.StatusUnprocessableEntity, result)
			case repositories.IsVersionConflict(err):
				http.Error(w, "Stored snapshot changed since base version", http.StatusConflict)
			case conflict.IsUnresolvable(err):
				http.Error(w, "Conflict cannot be resolved automatically", http.StatusConflict)
			default:
				log.Error("failed to push snapshot: %v", err)
				http.Error(w, "Failed to push snapshot", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func HandleLatest(service *syncpkg.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			log.Error("failed to get identity from context")
			http.Error(w, "Failed to get identity from context", http.StatusInternalServerError)
			return
		}

		envelope, err := service.Latest(r.Context(), identity)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "No snapshot stored", http.StatusNotFound)
				return
			}
			log.Error("failed to load latest snapshot: %v", err)
			http.Error(w, "Failed to load latest snapshot", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, envelope)
	}
}

func HandleConflictChoice(service *syncpkg.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			log.Error("failed to get identity from context")
			http.Error(w, "Failed to get identity from context", http.StatusInternalServerError)
			return
		}

		conflictID := mux.Vars(r)["conflictID"]

		var req ConflictChoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error("failed to decode conflict choice: %v", err)
			http.Error(w, "Failed to decode conflict choice", http.StatusBadRequest)
			return
		}
		if req.Conflict.ID != conflictID {
			http.Error(w, "Conflict ID does not match request path", http.StatusBadRequest)
			return
		}

		resolution, err := service.ResumeConflict(r.Context(), identity, req.Conflict, req.Choice)
		if err != nil {
			if conflict.IsUnresolvable(err) {
				http.Error(w, "Choice could not be applied", http.StatusUnprocessableEntity)
				return
			}
			log.Error("failed to apply conflict choice: %v", err)
			http.Error(w, "Failed to apply conflict choice", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, resolution)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
