package auth_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-bridge"
)

func TestMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := auth.NewMetricsSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure}))

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.Counter().WithLabelValues(string(auth.ActivityEventLoginSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.Counter().WithLabelValues(string(auth.ActivityEventLoginFailure))))
	assert.Equal(t, 2, testutil.CollectAndCount(sink.Counter()))
}

func TestMetricsSinkReusesRegisteredCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := auth.NewMetricsSink(reg)
	require.NoError(t, err)
	second, err := auth.NewMetricsSink(reg)
	require.NoError(t, err)

	require.NoError(t, first.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventLogout}))
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Counter().WithLabelValues(string(auth.ActivityEventLogout))))
}

func TestMultiActivitySink(t *testing.T) {
	a, b := &capturingSink{}, &capturingSink{}
	failing := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return assert.AnError
	})

	multi := auth.MultiActivitySink{a, nil, failing, b}
	err := multi.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventRegister})

	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1, "later sinks still receive the event")

	var nilFunc auth.ActivitySinkFunc
	assert.NoError(t, nilFunc.Record(context.Background(), auth.ActivityEvent{}))
}
