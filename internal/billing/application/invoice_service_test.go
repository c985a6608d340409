package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vibelux-energy/internal/billing/application"
	billing "vibelux-energy/internal/billing/domain"
	"vibelux-energy/internal/billing/infrastructure/memory"
	masterdata "vibelux-energy/internal/masterdata/domain"
	masterdatamem "vibelux-energy/internal/masterdata/infrastructure/memory"
	savings "vibelux-energy/internal/savings/domain"
)

type stubSavings struct {
	result *savings.Result
	err    error
}

func (s *stubSavings) Compute(_ context.Context, facilityID string, period savings.Period, _ bool) (*savings.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := *s.result
	result.FacilityID = facilityID
	result.Period = period
	return &result, nil
}

func seedBillingFacility(t *testing.T) *masterdatamem.FacilityRepository {
	t.Helper()
	facilities := masterdatamem.NewFacilityRepository()
	err := facilities.Save(context.Background(), &masterdata.Facility{
		ID:               "fac-1",
		TenantID:         "tenant-1",
		Name:             "Greenhouse 12",
		GuaranteedMinPct: 15,
		RevenueShareBps:  2500,
		Currency:         "USD",
	})
	if err != nil {
		t.Fatalf("seed facility: %v", err)
	}
	return facilities
}

func newInvoiceService(t *testing.T, source application.SavingsSource, repo billing.InvoiceRepository) *application.InvoiceService {
	t.Helper()
	service, err := application.NewInvoiceService(source, repo, seedBillingFacility(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("new invoice service: %v", err)
	}
	return service
}

func goodResult() *savings.Result {
	return &savings.Result{
		SavingsPct:      22,
		SavingsCents:    220_000,
		BaselineVersion: "v-abc",
		CoverageDays:    28,
		PeriodDays:      28,
	}
}

func TestGenerate_FirstVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service := newInvoiceService(t, &stubSavings{result: goodResult()}, repo)
	period := savings.Period{Year: 2026, Month: time.February}

	invoice, err := service.Generate(ctx, "fac-1", period, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if invoice.Version != 1 || invoice.Status != billing.StatusCurrent {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}
	if invoice.VibeluxShareCents != 55_000 || invoice.CustomerSavingsCents != 165_000 {
		t.Fatalf("split wrong: %d / %d", invoice.VibeluxShareCents, invoice.CustomerSavingsCents)
	}
	if !invoice.GuaranteeMet || invoice.Reason != "" {
		t.Fatalf("guarantee flags wrong: %+v", invoice)
	}
	if invoice.PaymentStatus != billing.PaymentUnpaid {
		t.Fatalf("payment status = %s", invoice.PaymentStatus)
	}
}

func TestGenerate_SetsDueDate(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service := newInvoiceService(t, &stubSavings{result: goodResult()}, repo)

	invoice, err := service.Generate(ctx, "fac-1", savings.Period{Year: 2026, Month: time.February}, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := invoice.CreatedAt.AddDate(0, 0, billing.DefaultNetTermsDays)
	if !invoice.DueDate.Equal(want) {
		t.Fatalf("due date = %v, want %v", invoice.DueDate, want)
	}
}

func TestGenerate_NetTermsOverride(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service, err := application.NewInvoiceService(
		&stubSavings{result: goodResult()}, repo, seedBillingFacility(t), nil, nil, nil,
		application.WithNetTerms(14))
	if err != nil {
		t.Fatalf("new invoice service: %v", err)
	}

	invoice, err := service.Generate(ctx, "fac-1", savings.Period{Year: 2026, Month: time.February}, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := invoice.CreatedAt.AddDate(0, 0, 14)
	if !invoice.DueDate.Equal(want) {
		t.Fatalf("due date = %v, want %v", invoice.DueDate, want)
	}
}

func TestGenerate_SupersedesPriorVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	source := &stubSavings{result: goodResult()}
	service := newInvoiceService(t, source, repo)
	period := savings.Period{Year: 2026, Month: time.February}

	first, err := service.Generate(ctx, "fac-1", period, "operator")
	if err != nil {
		t.Fatalf("generate v1: %v", err)
	}

	// A late adjustment changes the measured result; regenerating yields v2.
	source.result.SavingsCents = 180_000
	second, err := service.Generate(ctx, "fac-1", period, "operator")
	if err != nil {
		t.Fatalf("generate v2: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("version = %d, want 2", second.Version)
	}

	voided, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if voided.Status != billing.StatusVoided {
		t.Fatalf("v1 status = %s, want voided", voided.Status)
	}

	current, err := repo.FindCurrent(ctx, "fac-1", period)
	if err != nil {
		t.Fatalf("find current: %v", err)
	}
	if current.ID != second.ID {
		t.Fatalf("current = %s, want %s", current.ID, second.ID)
	}

	versions, err := repo.ListVersions(ctx, "fac-1", period)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
}

func TestGenerate_PaidInvoiceLocksPeriod(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service := newInvoiceService(t, &stubSavings{result: goodResult()}, repo)
	period := savings.Period{Year: 2026, Month: time.February}

	invoice, err := service.Generate(ctx, "fac-1", period, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := service.RecordPayment(ctx, invoice.ID, billing.PaymentPaid, "finance"); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	if _, err := service.Generate(ctx, "fac-1", period, "operator"); !errors.Is(err, billing.ErrInvoiceLocked) {
		t.Fatalf("expected ErrInvoiceLocked, got %v", err)
	}
}

func TestGenerateIfMissing_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service := newInvoiceService(t, &stubSavings{result: goodResult()}, repo)
	period := savings.Period{Year: 2026, Month: time.February}

	first, err := service.GenerateIfMissing(ctx, "fac-1", period, "scheduler")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := service.GenerateIfMissing(ctx, "fac-1", period, "scheduler")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.ID != second.ID || second.Version != 1 {
		t.Fatalf("monthly re-run must not stack versions: %s vs %s", first.ID, second.ID)
	}
}

func TestGenerate_BelowGuarantee(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	result := goodResult()
	result.SavingsPct = 10
	result.SavingsCents = 80_000
	service := newInvoiceService(t, &stubSavings{result: result}, repo)

	invoice, err := service.Generate(ctx, "fac-1", savings.Period{Year: 2026, Month: time.March}, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if invoice.GuaranteeMet {
		t.Fatal("guarantee must not be met at 10%")
	}
	if invoice.VibeluxShareCents != 0 {
		t.Fatalf("share = %d, want 0", invoice.VibeluxShareCents)
	}
	if invoice.Reason != billing.BelowGuaranteeReason {
		t.Fatalf("reason = %q", invoice.Reason)
	}
}

func TestGenerate_IncompleteDataSurfaces(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service := newInvoiceService(t, &stubSavings{err: savings.ErrIncompleteData}, repo)

	if _, err := service.Generate(ctx, "fac-1", savings.Period{Year: 2026, Month: time.February}, "operator"); !errors.Is(err, savings.ErrIncompleteData) {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}

func TestRecordPayment_FailedKeepsInvoiceOpen(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	source := &stubSavings{result: goodResult()}
	service := newInvoiceService(t, source, repo)
	period := savings.Period{Year: 2026, Month: time.February}

	invoice, err := service.Generate(ctx, "fac-1", period, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	failed, err := service.RecordPayment(ctx, invoice.ID, billing.PaymentFailed, "finance")
	if err != nil {
		t.Fatalf("record failed payment: %v", err)
	}
	if failed.PaymentStatus != billing.PaymentFailed {
		t.Fatalf("payment status = %s, want failed", failed.PaymentStatus)
	}
	if !failed.PaidAt.IsZero() {
		t.Fatalf("failed payment must not set paid_at, got %v", failed.PaidAt)
	}

	// A failed attempt does not lock the period: regeneration still works.
	source.result.SavingsCents = 180_000
	second, err := service.Generate(ctx, "fac-1", period, "operator")
	if err != nil {
		t.Fatalf("regenerate after failed payment: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("version = %d, want 2", second.Version)
	}

	// A later successful attempt records paid normally.
	paid, err := service.RecordPayment(ctx, second.ID, billing.PaymentPaid, "finance")
	if err != nil {
		t.Fatalf("record paid: %v", err)
	}
	if paid.PaymentStatus != billing.PaymentPaid || paid.PaidAt.IsZero() {
		t.Fatalf("paid invoice wrong: %+v", paid)
	}
}

func TestRecordPayment_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service := newInvoiceService(t, &stubSavings{result: goodResult()}, repo)

	invoice, err := service.Generate(ctx, "fac-1", savings.Period{Year: 2026, Month: time.February}, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := service.RecordPayment(ctx, invoice.ID, "refunded", "finance"); err == nil {
		t.Fatal("unknown payment status must be rejected")
	}
}

func TestRecordPayment_UnknownInvoice(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	service := newInvoiceService(t, &stubSavings{result: goodResult()}, repo)

	if _, err := service.RecordPayment(ctx, "missing", billing.PaymentPaid, "finance"); !errors.Is(err, billing.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}
