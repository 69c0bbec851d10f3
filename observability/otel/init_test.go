package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "wagerd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitValidates(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
	_, err = Init(context.Background(), Config{ServiceName: "wagerd", Traces: true, SampleRatio: 2})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , x-tenant = wager,broken,=skip,")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "wager",
	}, headers)
}

func TestRootSamplerDescription(t *testing.T) {
	require.Contains(t, rootSampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, rootSampler(1).Description(), "AlwaysOnSampler")
	require.Contains(t, rootSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
