package server

import (
	"net/http"

	apperrors "github.com/pagewire/pagewire/internal/errors"
	servermw "github.com/pagewire/pagewire/internal/server/middleware"
)

// HandleError writes err as an API error object carrying the request id.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, servermw.GetRequestID(r.Context()), err)
}
