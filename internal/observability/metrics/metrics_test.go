package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("deal_id", "456"),
		attribute.String("resource", "deals"),
	)
	keys := make([]attribute.Key, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.ElementsMatch(t, []attribute.Key{"org_id", "resource"}, keys)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDealTransition(context.Background(), "WON")
		m.RecordLimitDenied(context.Background(), "deals")
		m.RecordRateLimitAllowed(context.Background(), "1", "write")
		m.RecordRateLimitDenied(context.Background(), "1", "write", "bucket")
	})
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoop()
	assert.NotNil(t, m)
	m.RecordDealTransition(context.Background(), "LOST")
}
