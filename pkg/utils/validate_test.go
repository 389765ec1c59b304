package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestValidate_InvoiceRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  models.InvoiceRecord
		wantErr string
	}{
		{
			name:   "valid",
			record: models.InvoiceRecord{Source: "procore", SourceID: "1", VendorName: "ACME", Amount: 10, Date: "2024-01-01"},
		},
		{
			name:    "missing vendor",
			record:  models.InvoiceRecord{Source: "procore", SourceID: "1", Amount: 10, Date: "2024-01-01"},
			wantErr: "VendorName",
		},
		{
			name:    "negative amount",
			record:  models.InvoiceRecord{Source: "procore", SourceID: "1", VendorName: "ACME", Amount: -1, Date: "2024-01-01"},
			wantErr: "gte=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.record)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
		})
	}
}

func TestBindRequest(t *testing.T) {
	e := echo.New()

	t.Run("binds and validates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"raw_name":"ACME"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())

		got, err := BindRequest[models.ResolveRequest](c)
		require.NoError(t, err)
		assert.Equal(t, "ACME", got.RawName)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())

		_, err := BindRequest[models.ResolveRequest](c)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}
