package decision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/urocare/pathway/internal/domain/patient"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func TestHandler_GetRecommendations(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.addPatient(55, 5.5, patient.PathwayNone)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.GetRecommendations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"category":"Low Risk"`) || !strings.Contains(body, `"score":2`) {
		t.Errorf("unexpected risk score in %s", body)
	}
}

func TestHandler_GetRecommendations_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.GetRecommendations(c); err == nil {
		t.Error("expected error for unknown patient")
	}
}

func TestHandler_CreateRecommendation(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.addPatient(60, 2, patient.PathwayNone)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"Repeat PSA","priority":"high"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.CreateRecommendation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateRecommendation_BadPriority(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.addPatient(60, 2, patient.PathwayNone)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"Repeat PSA","priority":"urgent"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.CreateRecommendation(c); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestHandler_UpdateStatus(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.addPatient(60, 2, patient.PathwayNone)
	r := &Recommendation{PatientID: p.ID, Text: "Repeat PSA"}
	if err := f.svc.CreateRecommendation(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	put := func(body string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(r.ID.String())
		return rec, h.UpdateStatus(c)
	}

	if rec, err := put(`{"status":"accepted"}`); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %v %d", err, rec.Code)
	}
	_, err := put(`{"status":"dismissed"}`)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 once no longer pending, got %v", err)
	}
	_, err = put(`{"status":"pending"}`)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid status, got %v", err)
	}
}
