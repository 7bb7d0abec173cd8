package bookings_service_api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls BookingsService over any gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetBooking(ctx context.Context, bookingID string) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"booking_id": bookingID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetBookingMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListBookings(ctx context.Context, page, pageSize int) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"page": page, "page_size": pageSize})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListBookingsMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterGateway exposes the service as JSON under /v1/ops/bookings.
func RegisterGateway(mux *runtime.ServeMux, client *Client, log logrus.FieldLogger) error {
	err := mux.HandlePath(http.MethodGet, "/v1/ops/bookings", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		resp, err := client.ListBookings(r.Context(), page, pageSize)
		forward(mux, w, r, resp, err, log)
	})
	if err != nil {
		return err
	}
	return mux.HandlePath(http.MethodGet, "/v1/ops/bookings/{booking_id}", func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		resp, err := client.GetBooking(r.Context(), params["booking_id"])
		forward(mux, w, r, resp, err, log)
	})
}

func forward(mux *runtime.ServeMux, w http.ResponseWriter, r *http.Request, resp proto.Message, err error, log logrus.FieldLogger) {
	_, outbound := runtime.MarshalerForRequest(mux, r)
	if err != nil {
		log.WithField("path", r.URL.Path).WithField("code", status.Code(err).String()).Warn("ops gateway call failed")
		runtime.HTTPError(r.Context(), mux, outbound, w, r, err)
		return
	}
	runtime.ForwardResponseMessage(r.Context(), mux, outbound, w, r, resp)
}
