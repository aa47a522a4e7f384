// internal/web/api.go
package web

import (
	"net/http"

	"libradesk/internal/respond"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.svc.Store.Synced() {
		status = http.StatusServiceUnavailable
	}
	respond.JSON(w, status, map[string]any{
		"synced":  s.svc.Store.Synced(),
		"version": s.svc.Store.Version(),
	})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, s.svc.Projector.Board())
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	board := s.svc.Projector.Board()
	if r.URL.Query().Get("issuable") == "true" {
		respond.JSON(w, http.StatusOK, board.IssuableBooks)
		return
	}
	respond.JSON(w, http.StatusOK, board.Books)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	board := s.svc.Projector.Board()
	if r.URL.Query().Get("active") == "true" {
		respond.JSON(w, http.StatusOK, board.SelectableMembers)
		return
	}
	respond.JSON(w, http.StatusOK, board.Members)
}

func (s *Server) handleOpenLoans(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, s.svc.Projector.Board().OpenLoans)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, s.svc.Store.Snapshot())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.svc.Auditor == nil {
		respond.JSON(w, http.StatusNotFound, map[string]string{"error": "auditing is disabled"})
		return
	}
	respond.JSON(w, http.StatusOK, s.svc.Auditor.Audit(r.Context()))
}
