// internal/circulation/handler.go
package circulation

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

func (h *Handler) Routes(r chi.Router) {
	r.Post("/loans", h.handleIssue)
	r.Post("/loans/{id}/return", h.handleReturn)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID   string `json:"bookId"`
		MemberID string `json:"memberId"`
	}

	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	loan, err := h.service.IssueLoan(r.Context(), req.BookID, req.MemberID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.service.ReturnLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, ret)
}
