package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ledgerlens/fincorr/internal/config"
	"github.com/ledgerlens/fincorr/internal/engine"
	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/services"
)

func correlatingBackend() *backendStub {
	correlator := engine.NewCorrelator()
	return &backendStub{correlate: correlator.Group}
}

func TestGRPCHandlerCorrelateAnomalies(t *testing.T) {
	h := NewGRPCHandler(nil, correlatingBackend())
	req, err := structpb.NewStruct(map[string]any{"anomalies": []any{
		map[string]any{"id": "1", "customer_id": "C1", "type": "fraud", "timestamp": "2024-03-01T10:00:00Z", "amount": 10.0},
		map[string]any{"id": "2", "customer_id": "C1", "type": "fraud", "timestamp": "2024-03-01T10:30:00Z", "amount": 20.0},
		map[string]any{"id": "3", "customer_id": "C1", "type": "fraud", "timestamp": "2024-03-01T12:00:00Z", "amount": 30.0},
	}})
	require.NoError(t, err)

	resp, err := h.CorrelateAnomalies(context.Background(), req)
	require.NoError(t, err)
	groups := resp.GetFields()["correlated_alerts"].GetListValue().GetValues()
	require.Len(t, groups, 2)
	assert.Equal(t, 2.0, groups[0].GetStructValue().GetFields()["count"].GetNumberValue())
	assert.Equal(t, 1.0, groups[1].GetStructValue().GetFields()["count"].GetNumberValue())
}

func TestGRPCHandlerInvalidRecord(t *testing.T) {
	h := NewGRPCHandler(nil, correlatingBackend())
	req, err := structpb.NewStruct(map[string]any{"anomalies": []any{
		map[string]any{"id": "1", "type": "fraud", "timestamp": "2024-03-01T10:00:00Z", "amount": 5.0},
	}})
	require.NoError(t, err)

	_, err = h.CorrelateAnomalies(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "customer_id")

	req, err = structpb.NewStruct(map[string]any{"anomalies": []any{
		map[string]any{"id": "1", "customer_id": "C1", "type": "fraud", "timestamp": "2024-03-01T10:00:00Z"},
	}})
	require.NoError(t, err)
	_, err = h.CorrelateAnomalies(context.Background(), req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "amount is required")

	_, err = h.CorrelateAnomalies(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCHandlerErrorCodes(t *testing.T) {
	h := NewGRPCHandler(nil, &backendStub{err: errors.New("boom")})
	_, err := h.GetCorrelatedAlerts(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.Internal, status.Code(err))

	h = NewGRPCHandler(nil, &backendStub{err: services.ErrStoreNotConfigured})
	_, err = h.GetCorrelatedAlerts(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	h = NewGRPCHandler(nil, nil)
	_, err = h.GetSLAStats(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServerRoundTrip(t *testing.T) {
	backend := correlatingBackend()
	backend.snapshot = models.SLASnapshot{Count: 2, AverageLatencyMS: 15, MaxLatencyMS: 20, MinLatencyMS: 10, SLAMS: 500}

	srv, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0"}, NewGRPCHandler(nil, backend))
	require.NoError(t, err)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(srv.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, health.GetStatus())

	out := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, FullMethod("GetSLAStats"), &structpb.Struct{}, out))
	assert.Equal(t, 2.0, out.GetFields()["count"].GetNumberValue())
	assert.Equal(t, 500.0, out.GetFields()["sla_ms"].GetNumberValue())

	req, err := structpb.NewStruct(map[string]any{"anomalies": []any{}})
	require.NoError(t, err)
	out = &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, FullMethod("CorrelateAnomalies"), req, out))
	assert.Empty(t, out.GetFields()["correlated_alerts"].GetListValue().GetValues())
}
