package bookings_service_api

import (
	"context"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "skybooking.ops.BookingsService"
	GetBookingMethod   = "/" + ServiceName + "/GetBooking"
	ListBookingsMethod = "/" + ServiceName + "/ListBookings"
)

// BookingsServiceServer is the read-only operations API. Messages are
// google.protobuf.Struct so the service needs no generated code.
type BookingsServiceServer interface {
	GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type Bookings interface {
	GetBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error)
	ListBookings(ctx context.Context, page, pageSize int) (*booking.BookingPage, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBooking", Handler: getBookingHandler},
		{MethodName: "ListBookings", Handler: listBookingsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skybooking/ops/bookings.proto",
}

func Register(registrar grpc.ServiceRegistrar, srv BookingsServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

type Server struct {
	bookings Bookings
}

var _ BookingsServiceServer = (*Server)(nil)

func NewServer(bookings Bookings) *Server {
	return &Server{bookings: bookings}
}

func (s *Server) GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["booking_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "booking_id is required")
	}
	b, err := s.bookings.GetBookingByID(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toPBBooking(b)
}

func (s *Server) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	page, err := s.bookings.ListBookings(ctx,
		int(fields["page"].GetNumberValue()),
		int(fields["page_size"].GetNumberValue()),
	)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]interface{}, 0, len(page.Bookings))
	for i := range page.Bookings {
		list = append(list, bookingFields(&page.Bookings[i]))
	}
	return structpb.NewStruct(map[string]interface{}{
		"bookings":  list,
		"total":     page.Total,
		"page":      page.Page,
		"page_size": page.PageSize,
	})
}

func toPBBooking(b *domain.Booking) (*structpb.Struct, error) {
	return structpb.NewStruct(bookingFields(b))
}

func bookingFields(b *domain.Booking) map[string]interface{} {
	return map[string]interface{}{
		"id":              b.ID,
		"pnr":             b.PNR,
		"user_id":         b.UserID,
		"status":          string(b.Status),
		"contact_email":   b.ContactEmail,
		"total_amount":    domain.FromCents(b.TotalCents),
		"currency":        b.Currency,
		"origin":          b.Route.From.Code,
		"destination":     b.Route.To.Code,
		"departure_date":  b.Route.DepartureDate,
		"passenger_count": len(b.Passengers),
		"ticket_url":      b.TicketURL,
		"created_at":      b.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":      b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toStatus(err error) error {
	switch domain.KindOf(err) {
	case domain.KindBookingNotFound:
		return status.Error(codes.NotFound, domain.MessageOf(err))
	case domain.KindInvalidRequest:
		return status.Error(codes.InvalidArgument, domain.MessageOf(err))
	default:
		return status.Error(codes.Internal, domain.MessageOf(err))
	}
}

func getBookingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingsServiceServer).GetBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetBookingMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BookingsServiceServer).GetBooking(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listBookingsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingsServiceServer).ListBookings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListBookingsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BookingsServiceServer).ListBookings(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
