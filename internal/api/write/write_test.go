package write_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/api/write"
	"github.com/openkcm/tenant-lifecycle/internal/apierrors"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

func TestErrorResponse(t *testing.T) {
	t.Run("should carry the request id", func(t *testing.T) {
		ctx := ctxutils.InjectRequestID(t.Context())
		requestID, err := ctxutils.GetRequestID(ctx)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		write.ErrorResponse(ctx, rec, apierrors.JSONDecodeErrorMessage())

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body apierrors.ErrorMessage

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apierrors.JSONDecodeErr, body.Error.Code)
		require.NotNil(t, body.Error.RequestID)
		assert.Equal(t, requestID, *body.Error.RequestID)
	})

	t.Run("should omit a missing request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		write.ErrorResponse(t.Context(), rec, apierrors.InternalServerErrorMessage())

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "requestId")
	})
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	write.JSON(t.Context(), rec, http.StatusAccepted, map[string]string{"tenantId": "t-1"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"tenantId":"t-1"}`, rec.Body.String())
}
