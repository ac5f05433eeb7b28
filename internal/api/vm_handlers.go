package api

import (
	"net/http"

	"github.com/bpfgate/bpfgate/internal/exec"
)

type vmExecResponse struct {
	ID string `json:"id"`
}

// handleVMExec queues a background execution of the image in the requested
// slot and returns immediately with the job id.
func (s *Server) handleVMExec(w http.ResponseWriter, r *http.Request) {
	var req exec.Request
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if req.Slot == "" {
		writeValidationError(w, "slot is required")
		return
	}

	id, err := s.pool.Enqueue(req)
	if err != nil {
		s.logger.Error("enqueue background execution", "slot", req.Slot, "error", err)
		writeAPIError(w, err)
		return
	}

	s.logger.Info("background execution queued", "job_id", id, "slot", req.Slot)
	writeJSON(w, http.StatusAccepted, vmExecResponse{ID: id})
}

// handleVMResults lists recent background execution results, newest first.
func (s *Server) handleVMResults(w http.ResponseWriter, r *http.Request) {
	results := s.pool.Results()
	if results == nil {
		results = []exec.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}
