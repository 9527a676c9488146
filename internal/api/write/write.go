package write

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/openkcm/tenant-lifecycle/internal/apierrors"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

// ErrorResponse writes an error response to the client and logs the error
func ErrorResponse(ctx context.Context, w http.ResponseWriter, errorResponse apierrors.ErrorMessage) {
	requestID, err := ctxutils.GetRequestID(ctx)
	if err == nil {
		errorResponse.Error.RequestID = &requestID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorResponse.Error.Status)

	enc := json.NewEncoder(w)

	err = enc.Encode(&errorResponse)
	if err != nil {
		log.Error(ctx, "Failed to encode error response", err)
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)

		return
	}
}

// JSON writes body with status.
func JSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		log.Error(ctx, "Failed to encode response", err)
	}
}
