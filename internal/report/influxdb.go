package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cds-bench/internal/config"
	"cds-bench/internal/logging"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const measurementName = "cds_measurement"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes every record as one point as soon as it is emitted.
type Influx struct {
	client   influxdb2.Client
	writeAPI pointWriter
	session  Session
}

func NewInfluxDBClient(db config.DatabaseConfig, session Session) (*Influx, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(db.Host, db.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		logger.WithField("host", db.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, fmt.Errorf("failed to connect to InfluxDB at %s: %w", db.Host, err)
	}
	if health.Status != "pass" {
		client.Close()
		message := ""
		if health.Message != nil {
			message = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s %s", health.Status, message)
	}

	logger.WithFields(logrus.Fields{
		"host":   db.Host,
		"bucket": db.Bucket,
		"org":    db.Org,
	}).Info("Connected to InfluxDB")

	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(db.Org, db.Bucket),
		session:  session,
	}, nil
}

func (i *Influx) Emit(r Record) error {
	if err := i.writeAPI.WritePoint(context.Background(), newPoint(i.session, r, time.Now())); err != nil {
		return fmt.Errorf("failed to write data point: %w", err)
	}
	return nil
}

func (i *Influx) Close() error {
	if i.client != nil {
		i.client.Close()
	}
	return nil
}

func newPoint(session Session, r Record, ts time.Time) *write.Point {
	tags := map[string]string{
		"program":       r.Program,
		"run":           strconv.Itoa(r.Run),
		"cpus":          strconv.Itoa(r.CPUs),
		"image":         session.Image,
		"checksum":      session.Checksum,
		"session_start": session.StartTime.Format(time.RFC3339),
	}
	if session.Host != nil {
		tags["hostname"] = session.Host.Hostname
	}

	fields := map[string]interface{}{
		"duration_us": r.DurationMicros,
	}
	if r.Perf != nil {
		fields["perf_cycles"] = r.Perf.Cycles
		fields["perf_instructions"] = r.Perf.Instructions
		fields["perf_cache_misses"] = r.Perf.CacheMisses
		fields["perf_cache_references"] = r.Perf.CacheReferences
		fields["perf_instructions_per_cycle"] = r.Perf.IPC()
	}

	return influxdb2.NewPoint(measurementName, tags, fields, ts)
}
