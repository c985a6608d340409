package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn              string
	baseURL          string
	authToken        string
	tenantID         string
	facilityPrefix   string
	facilityCount    int
	deviceCount      int
	startDate        string
	days             int
	seedFacilities   bool
	seedReadings     bool
	generateInvoices bool
	invoicePeriod    string
	invoiceIDsOut    string
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.facilityCount <= 0 {
		log.Fatal("facility-count must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}

	start, err := parseStartDate(cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}
	if cfg.invoicePeriod == "" {
		cfg.invoicePeriod = start.Format("2006-01")
	}

	facilityIDs := buildFacilityIDs(cfg.facilityPrefix, cfg.facilityCount)

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if cfg.seedFacilities {
		log.Printf("seeding facilities: count=%d tenant=%s", cfg.facilityCount, cfg.tenantID)
		if err := seedFacilities(ctx, db, facilityIDs, cfg.tenantID, start); err != nil {
			log.Fatalf("seed facilities: %v", err)
		}
	}

	if cfg.seedReadings {
		log.Printf("seeding readings: facilities=%d devices=%d days=%d", cfg.facilityCount, cfg.deviceCount, cfg.days)
		if err := seedReadings(ctx, db, facilityIDs, cfg.deviceCount, start, cfg.days); err != nil {
			log.Fatalf("seed readings: %v", err)
		}
	}

	if cfg.generateInvoices {
		if cfg.baseURL == "" {
			log.Fatal("base-url is required when generate-invoices is enabled")
		}
		log.Printf("generating invoices: period=%s facilities=%d", cfg.invoicePeriod, cfg.facilityCount)
		ids, err := generateInvoices(ctx, cfg.baseURL, cfg.authToken, facilityIDs, cfg.invoicePeriod)
		if err != nil {
			log.Fatalf("generate invoices: %v", err)
		}
		if cfg.invoiceIDsOut != "" {
			if err := writeLines(cfg.invoiceIDsOut, ids); err != nil {
				log.Fatalf("write invoice ids: %v", err)
			}
			log.Printf("invoice ids written to %s", cfg.invoiceIDsOut)
		}
	}

	log.Printf("perf seed completed")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", ""), "API base URL for invoice generation")
	flag.StringVar(&cfg.authToken, "auth-token", envOrDefault("AUTH_TOKEN", ""), "bearer token for API calls")
	flag.StringVar(&cfg.tenantID, "tenant-id", envOrDefault("TENANT_ID", "tenant-demo"), "tenant id used on facilities")
	flag.StringVar(&cfg.facilityPrefix, "facility-prefix", envOrDefault("FACILITY_PREFIX", "fac-perf-"), "facility id prefix")
	flag.IntVar(&cfg.facilityCount, "facility-count", envOrInt("FACILITY_COUNT", 10), "number of facilities to seed")
	flag.IntVar(&cfg.deviceCount, "device-count", envOrInt("DEVICE_COUNT", 3), "meters per facility")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "start date (YYYY-MM-DD or RFC3339)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 45), "number of days of readings to seed")
	flag.BoolVar(&cfg.seedFacilities, "seed-facilities", envOrBool("SEED_FACILITIES", true), "seed facility rows")
	flag.BoolVar(&cfg.seedReadings, "seed-readings", envOrBool("SEED_READINGS", true), "seed hourly readings")
	flag.BoolVar(&cfg.generateInvoices, "generate-invoices", envOrBool("GENERATE_INVOICES", false), "generate invoices via API")
	flag.StringVar(&cfg.invoicePeriod, "invoice-period", envOrDefault("INVOICE_PERIOD", ""), "billing period (YYYY-MM)")
	flag.StringVar(&cfg.invoiceIDsOut, "invoice-ids-out", envOrDefault("INVOICE_IDS_OUT", ""), "output file for invoice IDs")
	flag.Parse()
	return cfg
}

func parseStartDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Now().UTC().AddDate(0, 0, -45).Truncate(24 * time.Hour), nil
	}
	value = strings.TrimSpace(value)
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func buildFacilityIDs(prefix string, count int) []string {
	list := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		list = append(list, fmt.Sprintf("%s%04d", prefix, i))
	}
	return list
}

func seedFacilities(ctx context.Context, db *sql.DB, facilities []string, tenantID string, start time.Time) error {
	const insertSQL = `
INSERT INTO facilities (
	id, tenant_id, name, timezone, engagement_start, baseline_window_days,
	guaranteed_min_pct, revenue_share_bps, currency, rate_per_kwh_cents,
	demand_charge_cents_kw, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	engagement_start = EXCLUDED.engagement_start,
	baseline_window_days = EXCLUDED.baseline_window_days,
	guaranteed_min_pct = EXCLUDED.guaranteed_min_pct,
	revenue_share_bps = EXCLUDED.revenue_share_bps,
	updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	// Engagement starts 30 days into the seeded history so the frozen
	// pre-engagement baseline window has data on both sides.
	engagementStart := start.AddDate(0, 0, 30)
	for idx, facilityID := range facilities {
		if _, err := db.ExecContext(ctx, insertSQL,
			facilityID,
			tenantID,
			fmt.Sprintf("Perf Facility %04d", idx+1),
			"UTC",
			engagementStart,
			30,
			15.0,
			2500,
			"USD",
			14,
			0,
			now,
			now,
		); err != nil {
			return err
		}
	}
	return nil
}

func seedReadings(ctx context.Context, db *sql.DB, facilities []string, devices int, start time.Time, days int) error {
	const insertSQL = `
INSERT INTO readings (
	facility_id, device_id, zone_id, ts, kind, value, source, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$8
)
ON CONFLICT (facility_id, device_id, ts, kind)
DO NOTHING`

	now := time.Now().UTC()
	for idx, facilityID := range facilities {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		base := float64((idx % 10) + 2)
		for day := 0; day < days; day++ {
			dayStart := start.AddDate(0, 0, day)
			// Post-engagement days draw less energy so savings show up.
			scale := 1.0
			if day >= 30 {
				scale = 0.8
			}
			for dev := 1; dev <= devices; dev++ {
				deviceID := fmt.Sprintf("meter-%d", dev)
				zoneID := fmt.Sprintf("zone-%d", dev)
				for hour := 0; hour < 24; hour++ {
					ts := dayStart.Add(time.Duration(hour) * time.Hour).UTC()
					kwh := hourlyKWh(base, hour) * scale
					if _, err := stmt.ExecContext(ctx,
						facilityID, deviceID, zoneID, ts,
						"energy_kwh", kwh, "csv", now,
					); err != nil {
						_ = stmt.Close()
						_ = tx.Rollback()
						return err
					}
				}
			}
		}

		if err := stmt.Close(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Printf("seeded readings facility %s (%d/%d)", facilityID, idx+1, len(facilities))
	}
	return nil
}

// hourlyKWh is a diurnal curve: overnight base load, daytime hump.
func hourlyKWh(base float64, hour int) float64 {
	h := float64(hour)
	hump := 0.0
	if hour >= 6 && hour <= 20 {
		hump = 4 * math.Sin(math.Pi*(h-6)/14)
	}
	return base + hump
}

func generateInvoices(ctx context.Context, baseURL, authToken string, facilities []string, period string) ([]string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("base url required")
	}
	client := &http.Client{Timeout: 30 * time.Second}
	baseURL = strings.TrimRight(baseURL, "/")
	ids := make([]string, 0, len(facilities))
	for _, facilityID := range facilities {
		body := map[string]any{
			"facilityId": facilityID,
			"period":     period,
		}
		payload, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/invoices", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var respBody struct {
			ID string `json:"id"`
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("generate invoice failed for %s: http %d", facilityID, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
		_ = resp.Body.Close()
		if respBody.ID == "" {
			return nil, fmt.Errorf("empty invoice id for %s", facilityID)
		}
		ids = append(ids, respBody.ID)
	}
	return ids, nil
}

func writeLines(path string, lines []string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	content := strings.Join(lines, "\n")
	return os.WriteFile(path, []byte(content), 0o644)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envOrBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
