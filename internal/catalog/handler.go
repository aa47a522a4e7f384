// internal/catalog/handler.go
package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"libradesk/internal/respond"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the inventory endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/books", h.handleRegisterBook)
}

func (h *Handler) handleRegisterBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		Author   string `json:"author"`
		Quantity int    `json:"quantity"`
	}

	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	book, err := h.service.RegisterBook(r.Context(), req.Title, req.Author, req.Quantity)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, book)
}
