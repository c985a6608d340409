package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const timeLayout = time.RFC3339

// reconcile dumps the inputs behind one facility's billing period so an
// operator can audit an invoice by hand: stored daily actuals, the
// baseline curve version the invoice cites, and the full invoice
// supersede chain, all as CSV.
type config struct {
	dbURL      string
	facilityID string
	month      string
	outDir     string
}

type facilityRow struct {
	ID               string
	TenantID         string
	EngagementStart  *time.Time
	GuaranteedMinPct float64
	RevenueShareBps  int
	Currency         string
	RatePerKWhCents  int64
}

type dailyActual struct {
	DayStart  time.Time
	EnergyKWh float64
	CostCents int64
	Samples   int
}

type invoiceRow struct {
	ID                   string
	FacilityID           string
	PeriodStart          time.Time
	Version              int
	Status               string
	Currency             string
	BaselineVersion      string
	SavingsPct           float64
	SavingsCents         int64
	VibeluxShareCents    int64
	CustomerSavingsCents int64
	GuaranteeMet         bool
	Reason               string
	PaymentStatus        string
	PaidAt               *time.Time
	VoidReason           string
	VoidedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type baselineBucket struct {
	DayStart  time.Time `json:"day_start"`
	EnergyKWh float64   `json:"energy_kwh"`
	CostCents int64     `json:"cost_cents"`
}

type baselineCurveRow struct {
	Version     string
	WindowStart time.Time
	WindowEnd   time.Time
	Frozen      bool
	ComputedAt  time.Time
	Buckets     []baselineBucket
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	ctx := context.Background()
	monthStart, monthEnd, err := parseMonth(cfg.month)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	facility, err := loadFacility(ctx, db, cfg.facilityID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load facility:", err)
		os.Exit(2)
	}

	actuals, err := loadDailyActuals(ctx, db, cfg.facilityID, facility.RatePerKWhCents, monthStart, monthEnd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load actuals:", err)
		os.Exit(2)
	}

	invoices, err := loadInvoices(ctx, db, cfg.facilityID, monthStart)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load invoices:", err)
		os.Exit(2)
	}

	curves := make(map[string]baselineCurveRow)
	for _, invoice := range invoices {
		if invoice.BaselineVersion == "" {
			continue
		}
		if _, ok := curves[invoice.BaselineVersion]; ok {
			continue
		}
		curve, err := loadBaselineCurve(ctx, db, cfg.facilityID, invoice.BaselineVersion)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load baseline curve:", err)
			os.Exit(2)
		}
		if curve != nil {
			curves[invoice.BaselineVersion] = *curve
		}
	}

	if err := writeDailyActuals(cfg.outDir, actuals); err != nil {
		fmt.Fprintln(os.Stderr, "write actuals:", err)
		os.Exit(2)
	}
	if err := writeInvoices(cfg.outDir, invoices); err != nil {
		fmt.Fprintln(os.Stderr, "write invoices:", err)
		os.Exit(2)
	}
	if err := writeBaselineBuckets(cfg.outDir, curves); err != nil {
		fmt.Fprintln(os.Stderr, "write baseline buckets:", err)
		os.Exit(2)
	}
	if err := writeCheckReport(cfg.outDir, facility, actuals, invoices, curves, monthStart, monthEnd); err != nil {
		fmt.Fprintln(os.Stderr, "write check report:", err)
		os.Exit(2)
	}

	fmt.Printf("Reconciliation outputs written to %s\n", cfg.outDir)
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.facilityID, "facility", "", "facility id")
	flag.StringVar(&cfg.month, "month", "", "billing period in YYYY-MM")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	if cfg.facilityID == "" {
		return cfg, errors.New("missing --facility")
	}
	if cfg.month == "" {
		return cfg, errors.New("missing --month (YYYY-MM)")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseMonth(value string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("month must be YYYY-MM")
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start, end, nil
}

func loadFacility(ctx context.Context, db *sql.DB, facilityID string) (*facilityRow, error) {
	var row facilityRow
	var engagementStart sql.NullTime
	err := db.QueryRowContext(ctx, `
SELECT id, tenant_id, engagement_start, guaranteed_min_pct, revenue_share_bps,
	currency, rate_per_kwh_cents
FROM facilities
WHERE id = $1
LIMIT 1`, facilityID).Scan(
		&row.ID,
		&row.TenantID,
		&engagementStart,
		&row.GuaranteedMinPct,
		&row.RevenueShareBps,
		&row.Currency,
		&row.RatePerKWhCents,
	)
	if err != nil {
		return nil, err
	}
	if engagementStart.Valid {
		t := engagementStart.Time.UTC()
		row.EngagementStart = &t
	}
	return &row, nil
}

func loadDailyActuals(ctx context.Context, db *sql.DB, facilityID string, rateCents int64, from, to time.Time) ([]dailyActual, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	date_trunc('day', ts AT TIME ZONE 'UTC') AS day_start,
	SUM(value) AS energy_kwh,
	COUNT(*) AS samples
FROM readings
WHERE facility_id = $1
	AND kind = 'energy_kwh'
	AND ts >= $2
	AND ts < $3
GROUP BY day_start
ORDER BY day_start ASC`, facilityID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []dailyActual
	for rows.Next() {
		var row dailyActual
		if err := rows.Scan(&row.DayStart, &row.EnergyKWh, &row.Samples); err != nil {
			return nil, err
		}
		row.DayStart = row.DayStart.UTC()
		row.CostCents = int64(row.EnergyKWh*float64(rateCents) + 0.5)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func loadInvoices(ctx context.Context, db *sql.DB, facilityID string, periodStart time.Time) ([]invoiceRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	id,
	facility_id,
	period_start,
	version,
	status,
	currency,
	baseline_version,
	savings_pct,
	savings_cents,
	vibelux_share_cents,
	customer_savings_cents,
	guarantee_met,
	reason,
	payment_status,
	paid_at,
	void_reason,
	voided_at,
	created_at,
	updated_at
FROM invoices
WHERE facility_id = $1 AND period_start = $2
ORDER BY version ASC`, facilityID, periodStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []invoiceRow
	for rows.Next() {
		var row invoiceRow
		var reason, voidReason sql.NullString
		var paidAt, voidedAt sql.NullTime
		if err := rows.Scan(
			&row.ID,
			&row.FacilityID,
			&row.PeriodStart,
			&row.Version,
			&row.Status,
			&row.Currency,
			&row.BaselineVersion,
			&row.SavingsPct,
			&row.SavingsCents,
			&row.VibeluxShareCents,
			&row.CustomerSavingsCents,
			&row.GuaranteeMet,
			&reason,
			&row.PaymentStatus,
			&paidAt,
			&voidReason,
			&voidedAt,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		row.PeriodStart = row.PeriodStart.UTC()
		row.CreatedAt = row.CreatedAt.UTC()
		row.UpdatedAt = row.UpdatedAt.UTC()
		if reason.Valid {
			row.Reason = reason.String
		}
		if voidReason.Valid {
			row.VoidReason = voidReason.String
		}
		if paidAt.Valid {
			t := paidAt.Time.UTC()
			row.PaidAt = &t
		}
		if voidedAt.Valid {
			t := voidedAt.Time.UTC()
			row.VoidedAt = &t
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func loadBaselineCurve(ctx context.Context, db *sql.DB, facilityID, version string) (*baselineCurveRow, error) {
	var row baselineCurveRow
	var buckets []byte
	err := db.QueryRowContext(ctx, `
SELECT version, window_start, window_end, frozen, buckets, computed_at
FROM baseline_curves
WHERE facility_id = $1 AND version = $2
LIMIT 1`, facilityID, version).Scan(
		&row.Version,
		&row.WindowStart,
		&row.WindowEnd,
		&row.Frozen,
		&buckets,
		&row.ComputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(buckets, &row.Buckets); err != nil {
		return nil, err
	}
	row.WindowStart = row.WindowStart.UTC()
	row.WindowEnd = row.WindowEnd.UTC()
	row.ComputedAt = row.ComputedAt.UTC()
	return &row, nil
}

func writeDailyActuals(outDir string, rows []dailyActual) error {
	path := filepath.Join(outDir, "daily_actuals.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"day_start",
		"energy_kwh",
		"cost_cents",
		"samples",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			formatTime(row.DayStart),
			formatFloat(row.EnergyKWh),
			formatInt64(row.CostCents),
			strconv.Itoa(row.Samples),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeInvoices(outDir string, rows []invoiceRow) error {
	path := filepath.Join(outDir, "invoice_versions.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"id",
		"facility_id",
		"period_start",
		"version",
		"status",
		"currency",
		"baseline_version",
		"savings_pct",
		"savings_cents",
		"vibelux_share_cents",
		"customer_savings_cents",
		"guarantee_met",
		"reason",
		"payment_status",
		"paid_at",
		"void_reason",
		"voided_at",
		"created_at",
		"updated_at",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.ID,
			row.FacilityID,
			formatTime(row.PeriodStart),
			strconv.Itoa(row.Version),
			row.Status,
			row.Currency,
			row.BaselineVersion,
			formatFloat(row.SavingsPct),
			formatInt64(row.SavingsCents),
			formatInt64(row.VibeluxShareCents),
			formatInt64(row.CustomerSavingsCents),
			formatBool(row.GuaranteeMet),
			row.Reason,
			row.PaymentStatus,
			formatOptionalTime(row.PaidAt),
			row.VoidReason,
			formatOptionalTime(row.VoidedAt),
			formatTime(row.CreatedAt),
			formatTime(row.UpdatedAt),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeBaselineBuckets(outDir string, curves map[string]baselineCurveRow) error {
	path := filepath.Join(outDir, "baseline_buckets.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"version",
		"frozen",
		"window_start",
		"window_end",
		"computed_at",
		"day_start",
		"energy_kwh",
		"cost_cents",
	}); err != nil {
		return err
	}
	for _, curve := range curves {
		for _, bucket := range curve.Buckets {
			if err := writer.Write([]string{
				curve.Version,
				formatBool(curve.Frozen),
				formatTime(curve.WindowStart),
				formatTime(curve.WindowEnd),
				formatTime(curve.ComputedAt),
				formatTime(bucket.DayStart.UTC()),
				formatFloat(bucket.EnergyKWh),
				formatInt64(bucket.CostCents),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeCheckReport recomputes each invoice's savings from the stored
// baseline curve and daily actuals and reports the drift. Non-zero
// drift on a current invoice means its inputs changed after generation
// and a superseding run is due.
func writeCheckReport(outDir string, facility *facilityRow, actuals []dailyActual, invoices []invoiceRow, curves map[string]baselineCurveRow, from, to time.Time) error {
	path := filepath.Join(outDir, "check_report.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"invoice_id",
		"version",
		"status",
		"baseline_version",
		"actual_days",
		"actual_cost_cents",
		"baseline_daily_cost_cents",
		"recomputed_savings_cents",
		"stored_savings_cents",
		"savings_drift_cents",
		"guaranteed_min_pct",
		"revenue_share_bps",
	}); err != nil {
		return err
	}

	var actualCost int64
	for _, row := range actuals {
		actualCost += row.CostCents
	}
	periodDays := int(to.Sub(from).Hours() / 24)

	for _, invoice := range invoices {
		var recomputed int64
		var baselineDaily int64
		if curve, ok := curves[invoice.BaselineVersion]; ok && len(curve.Buckets) > 0 {
			var total int64
			for _, bucket := range curve.Buckets {
				total += bucket.CostCents
			}
			baselineDaily = total / int64(len(curve.Buckets))
			recomputed = baselineDaily*int64(periodDays) - actualCost
		}
		drift := recomputed - invoice.SavingsCents
		if err := writer.Write([]string{
			invoice.ID,
			strconv.Itoa(invoice.Version),
			invoice.Status,
			invoice.BaselineVersion,
			strconv.Itoa(len(actuals)),
			formatInt64(actualCost),
			formatInt64(baselineDaily),
			formatInt64(recomputed),
			formatInt64(invoice.SavingsCents),
			formatInt64(drift),
			formatFloat(facility.GuaranteedMinPct),
			strconv.Itoa(facility.RevenueShareBps),
		}); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatInt64(value int64) string {
	return strconv.FormatInt(value, 10)
}

func formatBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
