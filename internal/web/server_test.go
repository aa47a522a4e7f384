package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"libradesk/internal/audit"
	"libradesk/internal/backend"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/membership"
	"libradesk/internal/store"
	"libradesk/internal/views"
	"libradesk/internal/web"
)

type desk struct {
	mem     *backend.Memory
	store   *store.Store
	svc     web.Services
	handler http.Handler
}

func newDesk(t *testing.T, opts ...web.Option) *desk {
	t.Helper()

	mem := backend.NewMemory()
	st := store.New()
	stop, err := st.Sync(context.Background(), mem)
	require.NoError(t, err)
	t.Cleanup(stop)

	proj := views.NewProjector(st)
	t.Cleanup(proj.Close)

	svc := web.Services{
		Catalog:     catalog.NewService(mem),
		Membership:  membership.NewService(mem, st),
		Circulation: circulation.NewService(mem),
		Store:       st,
		Projector:   proj,
		Auditor:     audit.NewAuditor(st),
	}
	return &desk{
		mem:     mem,
		store:   st,
		svc:     svc,
		handler: web.NewServer(svc, opts...).Handler(),
	}
}

func (d *desk) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	return rec
}

func (d *desk) get(path string) *httptest.ResponseRecorder {
	return d.serve(httptest.NewRequest(http.MethodGet, path, nil))
}

// postForm submits a form and returns the message and kind carried by the
// redirect.
func (d *desk) postForm(t *testing.T, path string, values url.Values) (msg, kind string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := d.serve(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/", loc.Path)
	return loc.Query().Get("msg"), loc.Query().Get("kind")
}
