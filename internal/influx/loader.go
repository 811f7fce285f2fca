// Package influx reads and writes test execution records in InfluxDB.
//
// Each execution is one point in the configured measurement:
//
//	tags:   project, test_id, test_name, test_type
//	fields: status (string), duration_ms (float, optional), error_message (string, optional)
//	time:   execution creation time
package influx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

// DefaultMeasurement is used when Config.Measurement is empty
const DefaultMeasurement = "test_execution"

// Config holds InfluxDB connection settings
type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Validate checks that the required settings are present
func (c Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "url")
	}
	if c.Org == "" {
		missing = append(missing, "org")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("influx configuration incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Loader implements flaky.HistoryLoader over an InfluxDB bucket
type Loader struct {
	client      influxdb2.Client
	queryAPI    api.QueryAPI
	writeAPI    api.WriteAPIBlocking
	bucket      string
	measurement string
	log         zerolog.Logger
}

// NewLoader connects to InfluxDB. Call Close when done.
func NewLoader(cfg Config, log zerolog.Logger) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Loader{
		client:      client,
		queryAPI:    client.QueryAPI(cfg.Org),
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:      cfg.Bucket,
		measurement: cfg.Measurement,
		log:         log.With().Str("component", "influx_loader").Logger(),
	}, nil
}

// Close releases the client's resources
func (l *Loader) Close() {
	l.client.Close()
}

// FetchExecutionRecords returns the project's records created at or after since
func (l *Loader) FetchExecutionRecords(ctx context.Context, projectID string, since time.Time) ([]flaky.ExecutionRecord, error) {
	query := buildQuery(l.bucket, l.measurement, projectID, since)

	result, err := l.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("influx query failed: %w", err)
	}
	defer result.Close()

	records := []flaky.ExecutionRecord{}
	skipped := 0
	for result.Next() {
		row := result.Record()
		record, err := rowRecord(row.Time(), row.Values())
		if err != nil {
			skipped++
			l.log.Debug().Err(err).Time("time", row.Time()).Msg("skipping malformed point")
			continue
		}
		records = append(records, record)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("error reading influx results: %w", result.Err())
	}

	if skipped > 0 {
		l.log.Warn().Str("project", projectID).Int("skipped", skipped).Msg("skipped malformed points")
	}
	return records, nil
}

// WriteRecords writes records as points tagged with projectID
func (l *Loader) WriteRecords(ctx context.Context, projectID string, records []flaky.ExecutionRecord) error {
	points := make([]*write.Point, 0, len(records))
	for _, record := range records {
		points = append(points, recordPoint(l.measurement, projectID, record))
	}
	if err := l.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write %d points: %w", len(points), err)
	}
	return nil
}

func recordPoint(measurement, projectID string, record flaky.ExecutionRecord) *write.Point {
	fields := map[string]interface{}{
		"status": string(record.Status),
	}
	if record.DurationMs != nil {
		fields["duration_ms"] = *record.DurationMs
	}
	if record.ErrorMessage != nil {
		fields["error_message"] = *record.ErrorMessage
	}

	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"project":   projectID,
			"test_id":   record.TestID,
			"test_name": record.TestName,
			"test_type": record.TestType,
		},
		fields,
		record.CreatedAt,
	)
}

func buildQuery(bucket, measurement, projectID string, since time.Time) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.project == "%s")
		  |> pivot(rowKey:["_time", "test_id"], columnKey: ["_field"], valueColumn: "_value")
		  |> group()
		  |> sort(columns: ["_time"], desc: false)
	`, fluxString(bucket), since.UTC().Format(time.RFC3339Nano), fluxString(measurement), fluxString(projectID))
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`)

// fluxString escapes s for use inside a Flux string literal
func fluxString(s string) string {
	return fluxEscaper.Replace(s)
}

func rowRecord(t time.Time, values map[string]interface{}) (flaky.ExecutionRecord, error) {
	testID, _ := values["test_id"].(string)
	if testID == "" {
		return flaky.ExecutionRecord{}, errors.New("point has no test_id")
	}

	// Statuses other than PASSED, FAILED and SKIPPED are kept and count as not passed
	status := flaky.Status(stringValue(values["status"]))
	if status == "" {
		return flaky.ExecutionRecord{}, fmt.Errorf("point for %s has no status", testID)
	}

	record := flaky.ExecutionRecord{
		TestID:    testID,
		TestName:  stringValue(values["test_name"]),
		TestType:  stringValue(values["test_type"]),
		Status:    status,
		CreatedAt: t,
	}
	if record.TestName == "" {
		record.TestName = testID
	}

	switch d := values["duration_ms"].(type) {
	case float64:
		record.DurationMs = &d
	case int64:
		f := float64(d)
		record.DurationMs = &f
	}
	if message := stringValue(values["error_message"]); message != "" {
		record.ErrorMessage = &message
	}
	return record, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
