package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/spotalytics/internal/shared"
)

// ReauthorizeHint is the detail of every 401 caused by missing or unusable tokens.
const ReauthorizeHint = "Please call /authorize to generate new tokens"

var statusTable = []struct {
	status int
	errs   []error
}{
	{http.StatusUnauthorized, []error{shared.ErrNotAuthenticated, shared.ErrRefreshFailed, shared.ErrAuthFailed, shared.ErrStateMismatch}},
	{http.StatusBadRequest, []error{shared.ErrInvalidArgument, shared.ErrMissingArgument}},
	{http.StatusNotFound, []error{shared.ErrUserNotFound, shared.ErrPlaylistNotFound}},
	{http.StatusBadGateway, []error{shared.ErrAPIRequest, shared.ErrServiceUnavailable}},
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	for _, row := range statusTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.status
			}
		}
	}
	return http.StatusInternalServerError
}

// DetailFor is the client-facing message for err.
func DetailFor(err error) string {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrRefreshFailed):
		return ReauthorizeHint
	case StatusFor(err) == http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(detailResponse{Detail: detail})
}

func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, StatusFor(err), DetailFor(err))
}
