package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vibelux-energy/internal/audit"
	"vibelux-energy/internal/auth"
	"vibelux-energy/internal/baseline/application"
	baseline "vibelux-energy/internal/baseline/domain"
	baselinehttp "vibelux-energy/internal/baseline/interfaces/http"
	"vibelux-energy/internal/baseline/infrastructure/memory"
	masterdata "vibelux-energy/internal/masterdata/domain"
	masterdatamem "vibelux-energy/internal/masterdata/infrastructure/memory"
)

type captureAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *captureAuditor) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type tenantTable map[string]string

func (t tenantTable) EnsureFacilityTenant(_ context.Context, tenantID, facilityID string) error {
	owner, ok := t[facilityID]
	if !ok {
		return auth.ErrNotFound
	}
	if owner != tenantID {
		return auth.ErrTenantMismatch
	}
	return nil
}

func newHandler(t *testing.T, tenants auth.FacilityTenantChecker, auditor audit.Logger) (*baselinehttp.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	facilities := masterdatamem.NewFacilityRepository()
	err := facilities.Save(context.Background(), &masterdata.Facility{
		ID:                 "fac-1",
		TenantID:           "tenant-1",
		Name:               "Greenhouse 12",
		BaselineWindowDays: 30,
		Currency:           "USD",
	})
	if err != nil {
		t.Fatalf("seed facility: %v", err)
	}
	service, err := application.NewService(store, memory.CurveCache{Store: store}, facilities, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := baselinehttp.NewHandler(service, store, tenants, auditor, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, store
}

func postAdjustment(handler *baselinehttp.Handler, tenantID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/baseline/adjustments", strings.NewReader(body))
	req.RemoteAddr = "10.1.2.3:4567"
	ctx := auth.WithIdentity(req.Context(), tenantID, auth.RoleOperator, "alice")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.Adjustments(rec, req)
	return rec
}

func TestCreateAdjustment_OpenEndedAndAudited(t *testing.T) {
	auditor := &captureAuditor{}
	handler, store := newHandler(t, tenantTable{"fac-1": "tenant-1"}, auditor)

	rec := postAdjustment(handler, "tenant-1", `{
		"facilityId": "fac-1",
		"effectiveStart": "2026-02-01T00:00:00Z",
		"deltaKwhPerDay": 10,
		"demandKwDelta": 3,
		"reason": "added grow room",
		"notes": "second flower room online"
	}`)
	if rec.Code != 201 {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created baseline.Adjustment
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !created.EffectiveEnd.IsZero() {
		t.Fatalf("omitted effectiveEnd must stay open-ended, got %v", created.EffectiveEnd)
	}
	if created.DemandKWDelta != 3 || created.Notes != "second flower room online" {
		t.Fatalf("fields not persisted: %+v", created)
	}

	stored, err := store.ListIntersecting(context.Background(), "fac-1",
		time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, time.January, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("open-ended adjustment must cover far-future days, got %d rows", len(stored))
	}

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	if len(auditor.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(auditor.entries))
	}
	entry := auditor.entries[0]
	if entry.Action != "baseline.adjustment.create" || entry.Actor != "alice" {
		t.Fatalf("audit entry wrong: %+v", entry)
	}
	if entry.TenantID != "tenant-1" || entry.IP != "10.1.2.3" {
		t.Fatalf("audit entry missing tenant or ip: %+v", entry)
	}
}

func TestCreateAdjustment_TenantMismatch(t *testing.T) {
	auditor := &captureAuditor{}
	handler, _ := newHandler(t, tenantTable{"fac-1": "tenant-1"}, auditor)

	rec := postAdjustment(handler, "tenant-2", `{
		"facilityId": "fac-1",
		"effectiveStart": "2026-02-01T00:00:00Z",
		"deltaKwhPerDay": 10,
		"reason": "added grow room"
	}`)
	if rec.Code != 403 {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(auditor.entries) != 0 {
		t.Fatal("rejected request must not be audited")
	}
}

func TestCreateAdjustment_UnknownFacility(t *testing.T) {
	handler, _ := newHandler(t, tenantTable{"fac-1": "tenant-1"}, nil)

	rec := postAdjustment(handler, "tenant-1", `{
		"facilityId": "fac-9",
		"effectiveStart": "2026-02-01T00:00:00Z",
		"deltaKwhPerDay": 10,
		"reason": "added grow room"
	}`)
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
