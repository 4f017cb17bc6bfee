// ABOUTME: JSON response helpers and the mapping from board errors to HTTP status codes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/persist"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// statusFor maps a command or bridge error onto an HTTP status.
func statusFor(err error) int {
	var (
		laneErr  *core.LaneNotFoundError
		cardErr  *core.CardNotFoundError
		itemErr  *core.ItemNotFoundError
		rangeErr *core.IndexOutOfRangeError
	)
	switch {
	case errors.As(err, &laneErr), errors.As(err, &cardErr), errors.As(err, &itemErr),
		errors.Is(err, persist.ErrIntentNotFound):
		return http.StatusNotFound
	case errors.As(err, &rangeErr),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrUnknownGesture),
		errors.Is(err, core.ErrUnknownView),
		errors.Is(err, core.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrFinalizedOrderFixed),
		errors.Is(err, core.ErrNotFinalizedLane),
		errors.Is(err, core.ErrCardFinalized),
		errors.Is(err, core.ErrCardNotFinalized),
		errors.Is(err, persist.ErrIntentNotFailed):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoCurrentUser):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrActorBusy),
		errors.Is(err, core.ErrActorClosed),
		errors.Is(err, persist.ErrBridgeClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeCommandError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
