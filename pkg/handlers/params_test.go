package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParseContractID(t *testing.T) {
	valid := uuid.New()

	tests := []struct {
		name     string
		id       string
		wantOK   bool
		wantCode int
	}{
		{"valid", valid.String(), true, http.StatusOK},
		{"malformed", "12345", false, http.StatusBadRequest},
		{"empty", "", false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/contracts/x", nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()

			id, ok := ParseContractID(rec, req, zap.NewNop())

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantOK {
				assert.Equal(t, valid, id)
			} else {
				assert.Equal(t, uuid.Nil, id)
				assert.Contains(t, rec.Body.String(), "invalid_contract_id")
			}
		})
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    int
		wantErr string
	}{
		{"missing uses default", "", 25, ""},
		{"value", "?n=7", 7, ""},
		{"whitespace trimmed", "?n=%207%20", 7, ""},
		{"lower bound", "?n=1", 1, ""},
		{"not a number", "?n=seven", 0, "n must be an integer"},
		{"below range", "?n=0", 0, "n must be between 1 and 100"},
		{"above range", "?n=101", 0, "n must be between 1 and 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)

			got, err := queryInt(req, "n", 25, 1, 100)

			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
