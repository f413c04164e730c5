package contact

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnJSONError(t *testing.T) {
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	returnJSONErrorDetail(rr, r, http.StatusTooManyRequests, "rate_limited", "Trop de requêtes", "")

	var resp decoded
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Trop de requêtes", resp.Message)
	assert.Equal(t, &Errors{Code: http.StatusTooManyRequests, Reason: "rate_limited", Msg: "Trop de requêtes"}, resp.Errors)
	assert.Equal(t, GetMeta(), resp.Meta)
	assert.NotContains(t, rr.Body.String(), "detail")
}
