package ethics

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire
const (
	serviceName = "ouroboros.ethics.v1.EthicsService"
	applyMethod = "/" + serviceName + "/Apply"
)

func toStruct(m attribute.Mapping) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(m))
	for k, v := range m {
		fields[k] = structpb.NewNumberValue(v)
	}
	return &structpb.Struct{Fields: fields}
}

func fromStruct(s *structpb.Struct) (attribute.Mapping, error) {
	out := make(attribute.Mapping, len(s.GetFields()))
	for k, v := range s.GetFields() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("attribute %q is not a number", k)
		}
		out[k] = n.NumberValue
	}
	return out, nil
}
// #endregion wire

// #region client-struct
// Client applies ethical adjustment through a remote EthicsService.
type Client struct {
	conn    *grpc.ClientConn
	cc      grpc.ClientConnInterface
	timeout time.Duration
}
// #endregion client-struct

// #region constructor
// Dial connects to an EthicsService at addr. A positive timeout bounds each call.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn, timeout: timeout}, nil
}

// NewClientWithConn wraps an existing connection. Used for testing and for
// sharing a connection; Close does not close cc.
func NewClientWithConn(cc grpc.ClientConnInterface, timeout time.Duration) *Client {
	return &Client{cc: cc, timeout: timeout}
}
// #endregion constructor

// Close shuts down a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #region apply
// Apply implements adjust.EthicalAdjuster.
func (c *Client) Apply(ctx context.Context, m attribute.Mapping) (attribute.Mapping, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, applyMethod, toStruct(m), reply); err != nil {
		return nil, fmt.Errorf("apply rpc: %w", err)
	}
	out, err := fromStruct(reply)
	if err != nil {
		return nil, fmt.Errorf("apply reply: %w", err)
	}
	return out, nil
}
// #endregion apply
