package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/backend"
	"libradesk/internal/catalog"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	catalog.NewHandler(catalog.NewService(backend.NewMemory())).Routes(r)
	return r
}

func TestHandler_RegisterBook(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(`{"title":"Dune","author":"Frank Herbert","quantity":2}`))
	rec := httptest.NewRecorder()

	newRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var book catalog.Book
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&book))
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, 2, book.Available)
}

func TestHandler_RegisterBookErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"fractional quantity", `{"title":"Dune","author":"Frank Herbert","quantity":1.5}`},
		{"missing author", `{"title":"Dune","quantity":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			newRouter().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "validation", body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}
