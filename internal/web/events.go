// internal/web/events.go
package web

import (
	"fmt"
	"net/http"
	"time"
)

// handleEvents streams a "change" event with the new board version after every
// store update.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	versions, cancel := s.svc.Projector.Watch()
	defer cancel()

	if err := writeEvent(w, rc, "hello", s.svc.Projector.Board().Version); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case v := <-versions:
			if err := writeEvent(w, rc, "change", v); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, name string, version uint64) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %d\n\n", name, version); err != nil {
		return err
	}
	return rc.Flush()
}
