package api

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ledgerlens/fincorr/internal/engine"
	"github.com/ledgerlens/fincorr/internal/ingest"
	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/services"
	"github.com/ledgerlens/fincorr/internal/utils"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "fincorr.v1.Correlator"

// Backend is the service surface both transports expose.
type Backend interface {
	CorrelatedAlerts(ctx context.Context) ([]models.AlertGroup, error)
	Correlate(ctx context.Context, records []models.AnomalyRecord) ([]models.AlertGroup, error)
	Hotspots(ctx context.Context, limit int) ([]models.CustomerHotspot, error)
	DashboardStats(ctx context.Context) (models.DashboardStats, error)
	SLAStats(ctx context.Context) models.SLASnapshot
	DetectBatch(ctx context.Context, txs []models.Transaction) (models.DetectionSummary, error)
}

// CorrelatorServer is the gRPC service contract. Messages are google.protobuf.Struct
// values carrying the same fields as the JSON dashboard API.
type CorrelatorServer interface {
	GetCorrelatedAlerts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CorrelateAnomalies(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSLAStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// CorrelatorServiceDesc describes the Correlator service for grpc.Server registration.
var CorrelatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CorrelatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCorrelatedAlerts", Handler: unaryHandler("GetCorrelatedAlerts", CorrelatorServer.GetCorrelatedAlerts)},
		{MethodName: "CorrelateAnomalies", Handler: unaryHandler("CorrelateAnomalies", CorrelatorServer.CorrelateAnomalies)},
		{MethodName: "GetSLAStats", Handler: unaryHandler("GetSLAStats", CorrelatorServer.GetSLAStats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fincorr/v1/correlator.proto",
}

// RegisterCorrelatorServer attaches srv to a gRPC registrar.
func RegisterCorrelatorServer(r grpc.ServiceRegistrar, srv CorrelatorServer) {
	r.RegisterService(&CorrelatorServiceDesc, srv)
}

// FullMethod returns the invoke path for a Correlator method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler(
	method string,
	call func(CorrelatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CorrelatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CorrelatorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCHandler implements CorrelatorServer on top of a Backend.
type GRPCHandler struct {
	backend Backend
	logger  *slog.Logger
}

// NewGRPCHandler constructs the gRPC facade.
func NewGRPCHandler(logger *slog.Logger, backend Backend) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{backend: backend, logger: logger}
}

// GetCorrelatedAlerts groups all stored anomalies.
func (h *GRPCHandler) GetCorrelatedAlerts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if h.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "backend not configured")
	}
	groups, err := h.backend.CorrelatedAlerts(ctx)
	if err != nil {
		return nil, h.statusError("get correlated alerts", err)
	}
	return h.encode(ToStructCorrelatedAlerts(groups))
}

// CorrelateAnomalies groups the anomalies carried in the request.
func (h *GRPCHandler) CorrelateAnomalies(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if h.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "backend not configured")
	}
	records, err := FromStructAnomalyRecords(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	groups, err := h.backend.Correlate(ctx, records)
	if err != nil {
		return nil, h.statusError("correlate anomalies", err)
	}
	return h.encode(ToStructCorrelatedAlerts(groups))
}

// GetSLAStats returns the SLA snapshot.
func (h *GRPCHandler) GetSLAStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if h.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "backend not configured")
	}
	return h.encode(ToStructSLASnapshot(h.backend.SLAStats(ctx)))
}

func (h *GRPCHandler) encode(resp *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		h.logger.Error("encode response failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func (h *GRPCHandler) statusError(op string, err error) error {
	switch {
	case isContractViolation(err):
		return status.Error(codes.InvalidArgument, utils.Message(err))
	case errors.Is(err, services.ErrStoreNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		return status.Error(codes.Internal, op+" failed")
	}
}

func isContractViolation(err error) bool {
	return errors.Is(err, engine.ErrInvalidRecord) ||
		errors.Is(err, ingest.ErrInvalidRow) ||
		errors.Is(err, ingest.ErrMissingColumns)
}
