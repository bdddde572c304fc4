package swr

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type swrMetricsCollection struct {
	lookupCount       metric.Int64Counter
	revalidationCount metric.Int64Counter
	deduplicatedCount metric.Int64Counter
}

var metrics swrMetricsCollection

func init() {
	const name = "deckcache/swr"
	meter := otel.Meter(name)

	lookupCount, err := meter.Int64Counter(
		"swr/lookup_count",
		metric.WithDescription("Cache lookups by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lookup count metric: %w", err))
	}

	revalidationCount, err := meter.Int64Counter(
		"swr/revalidation_count",
		metric.WithDescription("Upstream revalidations by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create revalidation count metric: %w", err))
	}

	deduplicatedCount, err := meter.Int64Counter(
		"swr/deduplicated_count",
		metric.WithDescription("Revalidations that shared an in-flight or recent request"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create deduplicated count metric: %w", err))
	}

	metrics = swrMetricsCollection{
		lookupCount:       lookupCount,
		revalidationCount: revalidationCount,
		deduplicatedCount: deduplicatedCount,
	}
}

func outcomeOption(outcome string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}
