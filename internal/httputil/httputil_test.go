package httputil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=500&bad=x&neg=-3", nil)
	assert.Equal(t, 100, QueryInt(r, "limit", 20, 100))
	assert.Equal(t, 20, QueryInt(r, "bad", 20, 100))
	assert.Equal(t, 1, QueryInt(r, "neg", 20, 100))
	assert.Equal(t, 20, QueryInt(r, "missing", 20, 100))
	assert.Equal(t, 500, QueryInt(r, "limit", 20, 0))
}

func TestQueryList(t *testing.T) {
	r := httptest.NewRequest("GET", "/?topics=vu,+state,,", nil)
	assert.Equal(t, []string{"vu", "state"}, QueryList(r, "topics"))
	assert.Nil(t, QueryList(r, "missing"))
}

func TestErrorWithCode(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorWithCode(rec, 503, "journal disabled")

	assert.Equal(t, 503, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, ErrorResponse{Code: 503, Message: "journal disabled"}, body)
}
