package core

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
)

const metricPrefix = "socialsync."

// Sweep metric names. Counters carry no labels so a single vector serves
// every sweep.
const (
	metricSweepTenants      = metricPrefix + "sweep.tenants"
	metricSweepFailures     = metricPrefix + "sweep.tenant_failures"
	metricSweepStoredItems  = metricPrefix + "sweep.stored_items"
	metricSweepPurgedStates = metricPrefix + "sweep.purged_states"
	metricSweepCancelled    = metricPrefix + "sweep.cancelled"
)

// operationTagKeys are copied from the log fields onto operation metrics.
var operationTagKeys = []string{"kind", "failure_class"}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

func (s *Service) recordOperation(ctx context.Context, operation string, status string, elapsed time.Duration, fields map[string]any) {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range operationTagKeys {
		if value := strings.TrimSpace(fmt.Sprint(fields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}
	s.recordCounter(ctx, metricPrefix+operation+".total", 1, tags)
	s.recordHistogram(ctx, metricPrefix+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)
}

// recordSweep publishes the outcome of one scheduled sweep. Failures are also
// counted per class so a run of auth failures is visible apart from throttling.
func (s *Service) recordSweep(ctx context.Context, report SweepReport) {
	s.recordCounter(ctx, metricSweepTenants, int64(len(report.Tenants)), nil)
	s.recordCounter(ctx, metricSweepStoredItems, int64(report.Stored()), nil)
	s.recordCounter(ctx, metricSweepPurgedStates, int64(report.PurgedStates), nil)
	if report.Cancelled {
		s.recordCounter(ctx, metricSweepCancelled, 1, nil)
	}
	byClass := map[FailureClass]int64{}
	for _, failure := range report.Failures {
		byClass[failure.Class]++
	}
	for class, count := range byClass {
		s.recordCounter(ctx, metricSweepFailures, count, map[string]string{"failure_class": string(class)})
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	return maps.Clone(tags)
}
