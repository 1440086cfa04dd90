// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"context"
	"net/http"
	"testing"

	"github.com/z5labs/ally/rest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthyMetric bool

func (m healthyMetric) Healthy(_ context.Context) bool {
	return bool(m)
}

func TestBinary_Toggle(t *testing.T) {
	t.Run("will make it unhealthy", func(t *testing.T) {
		t.Run("if the current state is healthy", func(t *testing.T) {
			var m Binary
			m.Toggle()
			assert.False(t, m.Healthy(context.Background()))
		})
	})

	t.Run("will make it healthy", func(t *testing.T) {
		t.Run("if the current state is unhealthy", func(t *testing.T) {
			m := Binary{unhealthy: true}
			m.Toggle()
			assert.True(t, m.Healthy(context.Background()))
		})
	})
}

func TestGate_Open(t *testing.T) {
	var g Gate
	assert.False(t, g.Healthy(context.Background()))

	g.Open()
	g.Open()
	assert.True(t, g.Healthy(context.Background()))
}

func TestLogicalMetrics(t *testing.T) {
	testCases := []struct {
		name     string
		metric   Metric
		expected bool
	}{
		{name: "and of healthy metrics", metric: And(healthyMetric(true), healthyMetric(true)), expected: true},
		{name: "and with an unhealthy metric", metric: And(healthyMetric(true), healthyMetric(false)), expected: false},
		{name: "or with a healthy metric", metric: Or(healthyMetric(false), healthyMetric(true)), expected: true},
		{name: "or of unhealthy metrics", metric: Or(healthyMetric(false)), expected: false},
		{name: "not of healthy metric", metric: Not(healthyMetric(true)), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.metric.Healthy(context.Background()))
		})
	}
}

func TestEndpoint_Process(t *testing.T) {
	var ready Gate
	e := NewEndpoint(map[string]Metric{
		"liveness":  &Binary{},
		"readiness": &ready,
	})

	probe := func(uri string) *rest.Exchange {
		ex := rest.NewExchange()
		ex.Request.URI = uri
		_, err := e.Process(context.Background(), nil, ex)
		require.Nil(t, err)
		return ex
	}

	assert.Equal(t, http.StatusOK, probe("liveness").Response.Status)
	assert.Equal(t, http.StatusServiceUnavailable, probe("readiness/").Response.Status)
	assert.Equal(t, http.StatusNotFound, probe("startup").Response.Status)

	ready.Open()
	assert.Equal(t, http.StatusOK, probe("readiness").Response.Status)
	assert.Equal(t, rest.Read, probe("readiness").Response.Allows)
}
