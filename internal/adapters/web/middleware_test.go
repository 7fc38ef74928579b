package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusCreated, "info"},
		{http.StatusBadRequest, "warn"},
		{http.StatusConflict, "warn"},
		{http.StatusUnprocessableEntity, "warn"},
		{http.StatusInternalServerError, "error"},
		{http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			l := zerolog.New(&buf)

			h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/sales-bills/1", nil)
			h.ServeHTTP(httptest.NewRecorder(), req.WithContext(l.WithContext(req.Context())))

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, float64(tt.status), line["status"])
			assert.Equal(t, "/api/sales-bills/1", line["path"])
		})
	}
}
