// internal/web/page.go
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"libradesk/internal/catalog"
	"libradesk/internal/errs"
	"libradesk/internal/views"
)

//go:embed templates/*.html
var templateFS embed.FS

var page = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Board   views.Board
	Message string
	Failed  bool
	Staff   string
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Board:   s.svc.Projector.Board(),
		Message: r.URL.Query().Get("msg"),
		Failed:  r.URL.Query().Get("kind") == "error",
		Staff:   Staff(r.Context()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := page.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}

// Form handlers follow post/redirect/get: the outcome travels to the page in
// the query string and shows up in the modal.

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	quantity, err := catalog.ParseQuantity(r.PostFormValue("quantity"))
	if err == nil {
		_, err = s.svc.Catalog.RegisterBook(r.Context(), r.PostFormValue("title"), r.PostFormValue("author"), quantity)
	}
	s.redirect(w, r, "Book added successfully!", err)
}

func (s *Server) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	_, err := s.svc.Membership.RegisterMember(r.Context(), r.PostFormValue("name"))
	s.redirect(w, r, "Member registered successfully!", err)
}

func (s *Server) handleDeactivateMember(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Membership.DeactivateMember(r.Context(), r.PostFormValue("member_id"))
	s.redirect(w, r, "Member deregistered successfully.", err)
}

func (s *Server) handleIssueLoan(w http.ResponseWriter, r *http.Request) {
	_, err := s.svc.Circulation.IssueLoan(r.Context(), r.PostFormValue("book_id"), r.PostFormValue("member_id"))
	s.redirect(w, r, "Book issued successfully!", err)
}

func (s *Server) handleReturnLoan(w http.ResponseWriter, r *http.Request) {
	ret, err := s.svc.Circulation.ReturnLoan(r.Context(), r.PostFormValue("loan_id"))
	msg := ""
	if err == nil {
		msg = fmt.Sprintf("Book returned successfully. Late fee: $%.2f", ret.LateFee)
	}
	s.redirect(w, r, msg, err)
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, success string, err error) {
	q := url.Values{}
	if err != nil {
		if errs.KindOf(err) == errs.KindBackend || errs.KindOf(err) == errs.KindUnknown {
			s.logger.Error("form action failed", "path", r.URL.Path, "staff", Staff(r.Context()), "error", err)
		}
		q.Set("msg", sentence(err.Error()))
		q.Set("kind", "error")
	} else {
		s.logger.Info("form action", "path", r.URL.Path, "staff", Staff(r.Context()))
		q.Set("msg", success)
		q.Set("kind", "ok")
	}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

// sentence capitalizes msg and ends it with a period.
func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	first, size := utf8.DecodeRuneInString(msg)
	msg = string(unicode.ToUpper(first)) + msg[size:]
	if !strings.HasSuffix(msg, ".") && !strings.HasSuffix(msg, "!") {
		msg += "."
	}
	return msg
}
