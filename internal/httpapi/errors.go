package httpapi

import (
	"encoding/json"
	"net/http"

	"statefuld/internal/manager"
	"statefuld/internal/status"
	"statefuld/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, code int, statusName, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: code, Status: statusName})
}

// httpStatusFor maps subsystem status codes to HTTP statuses. The mapping is
// stable across both predict surfaces.
func httpStatusFor(code status.Code) int {
	switch code {
	case status.SequenceMissing:
		return http.StatusNotFound
	case status.SequenceAlreadyExists:
		return http.StatusConflict
	case status.MaxSequencesReached:
		return http.StatusTooManyRequests
	case status.InternalError:
		return http.StatusInternalServerError
	}
	// Everything else is input validation.
	return http.StatusBadRequest
}

// writeInferError maps a pipeline error onto the wire.
func writeInferError(w http.ResponseWriter, err error) int {
	if manager.IsModelNotFound(err) {
		writeJSONError(w, http.StatusNotFound, "", err.Error())
		return http.StatusNotFound
	}
	code := status.CodeOf(err)
	httpStatus := httpStatusFor(code)
	if httpStatus == http.StatusTooManyRequests {
		IncrementBackpressure("max_sequences")
	}
	writeJSONError(w, httpStatus, string(code), err.Error())
	return httpStatus
}
