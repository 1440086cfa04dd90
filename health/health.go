// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health provides health metrics and the processor serving them.
package health

import (
	"context"
	"sync"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc is a func variant of the [Metric] interface.
type MetricFunc func(context.Context) bool

// Healthy implements the [Metric] interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Binary is a Metric that is either healthy or not. The zero value is healthy.
type Binary struct {
	mu        sync.Mutex
	unhealthy bool
}

// Toggle flips the state of Binary.
func (m *Binary) Toggle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unhealthy = !m.unhealthy
}

// Healthy implements the [Metric] interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unhealthy
}

// Gate is unhealthy until opened. Once open it stays open.
type Gate struct {
	mu   sync.Mutex
	open bool
}

// Open marks the gate healthy.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
}

// Healthy implements the [Metric] interface.
func (g *Gate) Healthy(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// AndMetric joins metrics with the logical and (&&) operator.
type AndMetric struct {
	metrics []Metric
}

// And returns a Metric healthy only when all metrics are healthy.
func And(metrics ...Metric) AndMetric {
	return AndMetric{metrics: metrics}
}

// Healthy implements the [Metric] interface.
func (m AndMetric) Healthy(ctx context.Context) bool {
	for _, metric := range m.metrics {
		if !metric.Healthy(ctx) {
			return false
		}
	}
	return true
}

// OrMetric joins metrics with the logical or (||) operator.
type OrMetric struct {
	metrics []Metric
}

// Or returns a Metric healthy when any of the metrics is healthy.
func Or(metrics ...Metric) OrMetric {
	return OrMetric{metrics: metrics}
}

// Healthy implements the [Metric] interface.
func (m OrMetric) Healthy(ctx context.Context) bool {
	for _, metric := range m.metrics {
		if metric.Healthy(ctx) {
			return true
		}
	}
	return false
}

// NotMetric negates a Metric.
type NotMetric struct {
	metric Metric
}

// Not returns the negation of metric.
func Not(metric Metric) NotMetric {
	return NotMetric{metric: metric}
}

// Healthy implements the [Metric] interface.
func (m NotMetric) Healthy(ctx context.Context) bool {
	return !m.metric.Healthy(ctx)
}
