package ygggo_sql

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsObserver records pool and query metrics from lifecycle events.
type MetricsObserver struct {
	leasesActive  metric.Int64UpDownCounter
	connections   metric.Int64Counter
	connectFails  metric.Int64Counter
	evictions     metric.Int64Counter
	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram
}

// NewMetricsObserver creates the instruments on mp, or on the global meter
// provider when mp is nil.
func NewMetricsObserver(mp metric.MeterProvider) (*MetricsObserver, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	var (
		m    MetricsObserver
		err  error
		errs *multierror.Error
	)
	m.leasesActive, err = meter.Int64UpDownCounter(
		"ygggo_sql_leases_active",
		metric.WithDescription("Number of clients currently leased"),
	)
	errs = multierror.Append(errs, err)

	m.connections, err = meter.Int64Counter(
		"ygggo_sql_connections_total",
		metric.WithDescription("Total number of clients connected"),
	)
	errs = multierror.Append(errs, err)

	m.connectFails, err = meter.Int64Counter(
		"ygggo_sql_connect_failures_total",
		metric.WithDescription("Total number of failed connect attempts"),
	)
	errs = multierror.Append(errs, err)

	m.evictions, err = meter.Int64Counter(
		"ygggo_sql_evictions_total",
		metric.WithDescription("Total number of clients removed from the pool"),
	)
	errs = multierror.Append(errs, err)

	m.queriesTotal, err = meter.Int64Counter(
		"ygggo_sql_queries_total",
		metric.WithDescription("Total number of executed statements"),
	)
	errs = multierror.Append(errs, err)

	m.queryDuration, err = meter.Float64Histogram(
		"ygggo_sql_query_duration_seconds",
		metric.WithDescription("Duration of executed statements"),
		metric.WithUnit("s"),
	)
	errs = multierror.Append(errs, err)

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &m, nil
}

// HandleEvent implements Observer.
func (m *MetricsObserver) HandleEvent(ctx context.Context, e Event) {
	switch e.Type {
	case EventAcquire:
		m.leasesActive.Add(ctx, 1)
	case EventRelease:
		m.leasesActive.Add(ctx, -1)
	case EventConnect:
		m.connections.Add(ctx, 1)
	case EventConnectFail:
		m.connectFails.Add(ctx, 1)
	case EventRemove:
		m.evictions.Add(ctx, 1)
	case EventQueryAfter:
		status := "success"
		if e.Err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("operation", operationName(e.Query)),
			attribute.String("status", status),
		)
		m.queriesTotal.Add(ctx, 1, attrs)
		m.queryDuration.Record(ctx, e.Duration.Seconds(), attrs)
	}
}
