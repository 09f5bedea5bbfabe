package api

import (
	"encoding/json"
	"math"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	data := map[string]string{"message": "hello"}
	writeJSON(w, 200, data)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var result map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "hello", result["message"])
}

func TestWriteJSONEncodingFailure(t *testing.T) {
	w := httptest.NewRecorder()

	// NaN has no JSON representation; the encoder fails before any
	// headers go out, so the client gets a clean 500.
	writeJSON(w, 200, map[string]float64{"bad": math.NaN()})

	assert.Equal(t, 500, w.Code)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, 404, "not_found", "project not found")

	assert.Equal(t, 404, w.Code)

	var result map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "not_found", result["error"])
	assert.Equal(t, "project not found", result["message"])
}
