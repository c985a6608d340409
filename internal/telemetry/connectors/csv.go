package connectors

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	masterdata "vibelux-energy/internal/masterdata/domain"
	telemetry "vibelux-energy/internal/telemetry/domain"
)

const csvProcessedDir = "processed"

// CSVPoller ingests backfill files dropped into a watched directory.
// Expected header: device_id,zone_id,ts,kind,value. Files are moved to a
// processed/ subdirectory after a successful parse so a poll never reads
// the same file twice.
type CSVPoller struct {
	integration masterdata.Integration
	dir         string
}

// NewCSVPoller constructs a CSV directory poller.
func NewCSVPoller(integration masterdata.Integration) (*CSVPoller, error) {
	cfg := integration.Connector.CSV
	if cfg == nil || cfg.Dir == "" {
		return nil, errors.New("connectors: csv connector missing dir")
	}
	return &CSVPoller{integration: integration, dir: cfg.Dir}, nil
}

// Poll parses and consumes any pending CSV files.
func (p *CSVPoller) Poll(ctx context.Context) ([]telemetry.Reading, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, &telemetry.ConnectorError{IntegrationID: p.integration.ID, Op: "readdir", Err: err}
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var readings []telemetry.Reading
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(p.dir, name)
		parsed, err := p.parseFile(path)
		if err != nil {
			return nil, &telemetry.ConnectorError{IntegrationID: p.integration.ID, Op: "parse " + name, Err: err}
		}
		if err := p.consume(path, name); err != nil {
			return nil, &telemetry.ConnectorError{IntegrationID: p.integration.ID, Op: "consume " + name, Err: err}
		}
		readings = append(readings, parsed...)
	}
	return readings, nil
}

func (p *CSVPoller) parseFile(path string) ([]telemetry.Reading, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 5
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if !strings.EqualFold(rows[0][0], "device_id") {
		return nil, errors.New("missing header row")
	}

	readings := make([]telemetry.Reading, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ts, err := time.Parse(time.RFC3339, row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad timestamp %q", i+2, row[2])
		}
		value, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad value %q", i+2, row[4])
		}
		readings = append(readings, telemetry.Reading{
			FacilityID: p.integration.FacilityID,
			DeviceID:   row[0],
			ZoneID:     row[1],
			TS:         ts.UTC(),
			Kind:       telemetry.Kind(row[3]),
			Value:      value,
			Source:     telemetry.SourceCSV,
		})
	}
	return readings, nil
}

func (p *CSVPoller) consume(path, name string) error {
	dest := filepath.Join(p.dir, csvProcessedDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dest, name))
}
