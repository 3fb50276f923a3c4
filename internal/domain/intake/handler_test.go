package intake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Registry, *echo.Echo) {
	r := newTestRegistry(&fakeChecker{})
	return NewHandler(r), r, echo.New()
}

func newContext(e *echo.Echo, method, body, id string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c, rec
}

func TestHandler_Open(t *testing.T) {
	h, r, e := newTestHandler()
	defer r.CloseAll()
	c, rec := newContext(e, http.MethodPost, `{"target":"Current"}`, "")

	if err := h.Open(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var snap Snapshot
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.ID == "" || snap.Target != "Current" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Open_BadTarget(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, `{"target":"Completed"}`, "")

	err := h.Open(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Scan(t *testing.T) {
	h, r, e := newTestHandler()
	defer r.CloseAll()
	st, _ := r.Create("")
	c, rec := newContext(e, http.MethodPost, `{"code":"APT-2024-001"}`, st.ID())

	if err := h.Scan(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp inputResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Accepted || resp.State.LastCode != "APT-2024-001" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Scan_UnknownStation(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, `{"code":"A"}`, "nope")

	err := h.Scan(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_Keystroke(t *testing.T) {
	h, r, e := newTestHandler()
	defer r.CloseAll()
	st, _ := r.Create("")
	c, rec := newContext(e, http.MethodPost, `{"text":"APT"}`, st.ID())

	if err := h.Keystroke(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted || st.State().Entry != "APT" {
		t.Errorf("unexpected response %d, entry %q", rec.Code, st.State().Entry)
	}
}

func TestHandler_Close(t *testing.T) {
	h, r, e := newTestHandler()
	st, _ := r.Create("")
	c, rec := newContext(e, http.MethodDelete, "", st.ID())

	if err := h.Close(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent || r.Len() != 0 {
		t.Errorf("expected 204 and empty registry, got %d / %d", rec.Code, r.Len())
	}
}

func TestRegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/stations":                false,
		"GET /api/v1/stations/:id":             false,
		"POST /api/v1/stations/:id/scan":       false,
		"POST /api/v1/stations/:id/keystrokes": false,
		"POST /api/v1/stations/:id/submit":     false,
		"POST /api/v1/stations/:id/dismiss":    false,
		"DELETE /api/v1/stations/:id":          false,
	}
	for _, r := range e.Routes() {
		if _, ok := want[r.Method+" "+r.Path]; ok {
			want[r.Method+" "+r.Path] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("route %s not registered", k)
		}
	}
}
