package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

type createJobRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
	URL     string `json:"url" validate:"required,url"`
	Title   string `json:"title" validate:"required"`
	Cadence string `json:"cadence" validate:"omitempty"`
}

type updateJobRequest struct {
	URL     *string `json:"url" validate:"omitempty,url"`
	Title   *string `json:"title" validate:"omitempty,min=1"`
	Cadence *string `json:"cadence"`
}

// createJob registers a new recurring screenshot job. Persisting the
// record and installing the trigger happen together; a failed trigger
// install rolls the record back.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate job id")
		return
	}
	job := screenshot.Job{
		ID:      jobID,
		OwnerID: req.OwnerID,
		URL:     req.URL,
		Title:   req.Title,
		Cadence: req.Cadence,
		Active:  true,
	}

	created, err := s.store.CreateJob(r.Context(), job)
	if err != nil {
		if errors.Is(err, screenshot.ErrDuplicateJob) {
			writeError(w, http.StatusConflict, "owner already has a job with this url or title")
			return
		}
		writeError(w, http.StatusInternalServerError, "create job")
		return
	}

	if err := s.sched.OnJobCreated(created); err != nil {
		s.logger.Error("trigger install failed, rolling back job",
			zap.String("job_id", created.ID),
			zap.Error(err),
		)
		if delErr := s.store.DeleteJob(r.Context(), created.ID); delErr != nil {
			s.logger.Error("rollback delete failed", zap.String("job_id", created.ID), zap.Error(delErr))
		}
		writeError(w, http.StatusInternalServerError, "install trigger")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"job": created})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id query parameter is required")
		return
	}
	jobs, err := s.store.ListJobsByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs")
		return
	}
	if jobs == nil {
		jobs = []screenshot.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, screenshot.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// updateJob applies a partial edit and atomically swaps the trigger so
// the new URL and schedule take effect without a duplicate entry.
func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	var req updateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.store.UpdateJob(r.Context(), jobID, screenshot.JobUpdate{
		URL:     req.URL,
		Title:   req.Title,
		Cadence: req.Cadence,
	})
	if err != nil {
		if errors.Is(err, screenshot.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if errors.Is(err, screenshot.ErrDuplicateJob) {
			writeError(w, http.StatusConflict, "owner already has a job with this url or title")
			return
		}
		writeError(w, http.StatusInternalServerError, "update job")
		return
	}

	if err := s.sched.OnJobEdited(updated); err != nil {
		writeError(w, http.StatusInternalServerError, "replace trigger")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": updated})
}

// deleteJob tears down the trigger, the record, and the stored blobs.
// Every step tolerates the target already being gone, so repeated
// deletes of the same ID all return 204.
func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	s.sched.OnJobDeleted(jobID)
	if err := s.store.DeleteJob(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete job")
		return
	}
	if err := s.blobs.RemovePrefix(r.Context(), "screenshots/"+jobID); err != nil {
		// Blob reclamation is best-effort; the job itself is gone.
		s.logger.Warn("artifact reclamation failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, screenshot.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get job")
		return
	}
	artifacts := job.Artifacts
	if artifacts == nil {
		artifacts = []screenshot.ArtifactRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

func (s *Server) listTriggers(w http.ResponseWriter, _ *http.Request) {
	jobIDs := []string{}
	for id := range s.sched.ActiveTriggers() {
		jobIDs = append(jobIDs, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_ids": jobIDs})
}
