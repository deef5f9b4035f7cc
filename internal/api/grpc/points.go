package grpc

import (
	context "context"
	"errors"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	services "github.com/glkeru/loyalty/rewards/internal/services"
	"go.uber.org/zap"
	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName      = "rewards.Points"
	GetBalanceMethod = "/rewards.Points/GetBalance"
	GetTnxMethod     = "/rewards.Points/GetTnx"
	dateLayout       = time.DateOnly
)

// Сервис чтения баланса и истории
type PointsServer interface {
	GetBalance(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetTnx(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var PointsServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PointsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBalance", Handler: getBalanceHandler},
		{MethodName: "GetTnx", Handler: getTnxHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rewards/points",
}

func RegisterPointsServer(s grpc.ServiceRegistrar, srv PointsServer) {
	s.RegisterService(&PointsServiceDesc, srv)
}

func getBalanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PointsServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetBalanceMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PointsServer).GetBalance(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getTnxHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PointsServer).GetTnx(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetTnxMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PointsServer).GetTnx(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type PointsService struct {
	service *services.LoyaltyService
	logger  *zap.Logger
}

func NewPointsService(service *services.LoyaltyService, logger *zap.Logger) *PointsService {
	return &PointsService{service, logger}
}

func (p *PointsService) toStatus(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case model.IsDomainError(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	p.logger.Error("grpc", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

// Баланс
func (p *PointsService) GetBalance(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "user is empty")
	}
	acc, err := p.service.Balance(ctx, in.GetValue())
	if err != nil {
		return nil, p.toStatus(err)
	}
	next, toNext := model.NextTier(acc.Lifetime)
	return structpb.NewStruct(map[string]any{
		"user":           acc.UserID,
		"total":          acc.Total,
		"lifetime":       acc.Lifetime,
		"tier":           string(acc.Tier),
		"next_tier":      string(next),
		"points_to_next": toNext,
	})
}

// История транзакций: user, from, to (2006-01-02)
func (p *PointsService) GetTnx(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	user := fields["user"].GetStringValue()
	if user == "" {
		return nil, status.Error(codes.InvalidArgument, "user is empty")
	}
	from, err := time.Parse(dateLayout, fields["from"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "from: "+err.Error())
	}
	to, err := time.Parse(dateLayout, fields["to"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "to: "+err.Error())
	}
	to = to.Add(24*time.Hour - time.Nanosecond)

	tnxs, err := p.service.History(ctx, user, from, to)
	if err != nil {
		return nil, p.toStatus(err)
	}
	// сформировать ответ
	list := make([]any, len(tnxs))
	for i, v := range tnxs {
		list[i] = map[string]any{
			"id":         v.ID.String(),
			"points":     v.Points,
			"type":       string(v.Type),
			"reason":     v.Reason,
			"ref":        v.Ref,
			"reversed":   v.Reversed,
			"created_at": v.CreatedAt.Format(time.RFC3339),
		}
	}
	return structpb.NewStruct(map[string]any{"tnx": list})
}

// Клиент сервиса
type PointsClient struct {
	cc grpc.ClientConnInterface
}

func NewPointsClient(cc grpc.ClientConnInterface) *PointsClient {
	return &PointsClient{cc}
}

func (c *PointsClient) GetBalance(ctx context.Context, user string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetBalanceMethod, wrapperspb.String(user), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PointsClient) GetTnx(ctx context.Context, user string, from string, to string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"user": user, "from": from, "to": to})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetTnxMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
