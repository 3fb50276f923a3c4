package visit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(repo *mockRepo) (*Handler, *echo.Echo) {
	m, _ := newTestMachine(repo)
	return NewHandler(m), echo.New()
}

func TestHandler_GetVisit(t *testing.T) {
	h, e := newTestHandler(newMockRepo(rec("R1", 7, StatusQueued, "09:00")))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)
	c.SetParamNames("record_no")
	c.SetParamValues("R1")

	if err := h.GetVisit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Record
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.RecordNo != "R1" || got.Status != StatusQueued {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestHandler_GetVisit_NotFound(t *testing.T) {
	h, e := newTestHandler(newMockRepo())
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("record_no")
	c.SetParamValues("missing")

	err := h.GetVisit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_BeginConflict(t *testing.T) {
	h, e := newTestHandler(newMockRepo(
		rec("R1", 7, StatusCurrent, "08:00"),
		rec("R2", 7, StatusQueued, "09:00"),
	))
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("record_no")
	c.SetParamValues("R2")

	err := h.transition((*Machine).Begin)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_Admit(t *testing.T) {
	h, e := newTestHandler(newMockRepo(rec("R1", 7, StatusScheduled, "09:00")))
	recd := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), recd)
	c.SetParamNames("record_no")
	c.SetParamValues("R1")

	if err := h.transition((*Machine).Admit)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recd.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recd.Code)
	}
}

func TestHandler_GetQueue(t *testing.T) {
	h, e := newTestHandler(newMockRepo(
		rec("R1", 7, StatusQueued, "10:00"),
		rec("R2", 8, StatusCurrent, "09:00"),
	))
	recd := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date=2024-06-10", nil), recd)

	if err := h.GetQueue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var b Board
	json.Unmarshal(recd.Body.Bytes(), &b)
	if len(b.NowServing) != 1 || len(b.Waiting) != 1 {
		t.Errorf("unexpected board: %s", recd.Body.String())
	}
}

func TestHandler_GetQueue_BadEmployee(t *testing.T) {
	h, e := newTestHandler(newMockRepo())
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?employee_id=abc", nil), httptest.NewRecorder())

	err := h.GetQueue(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestRegisterRoutes(t *testing.T) {
	h, e := newTestHandler(newMockRepo())
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/visits/:record_no":           false,
		"GET /api/v1/queue":                       false,
		"POST /api/v1/visits/:record_no/admit":    false,
		"POST /api/v1/visits/:record_no/begin":    false,
		"POST /api/v1/visits/:record_no/complete": false,
		"POST /api/v1/visits/:record_no/resume":   false,
		"POST /api/v1/visits/:record_no/cancel":   false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("route %s not registered", k)
		}
	}
}
