package ethics

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region mock
type mockConn struct {
	grpc.ClientConnInterface

	method string
	req    *structpb.Struct
	resp   *structpb.Struct
	err    error
}

func (m *mockConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	m.method = method
	m.req = args.(*structpb.Struct)
	if m.err != nil {
		return m.err
	}
	reply.(*structpb.Struct).Fields = m.resp.GetFields()
	return nil
}
// #endregion mock

// #region client-tests
func TestClientApply_Success(t *testing.T) {
	mock := &mockConn{resp: toStruct(attribute.Mapping{"A": 5, "B": 1})}
	c := NewClientWithConn(mock, time.Second)

	got, err := c.Apply(context.Background(), attribute.Mapping{"A": 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.method != applyMethod {
		t.Errorf("expected method %s, got %s", applyMethod, mock.method)
	}
	if mock.req.GetFields()["A"].GetNumberValue() != 10 {
		t.Errorf("request did not carry the mapping: %v", mock.req)
	}
	if diff := cmp.Diff(attribute.Mapping{"A": 5, "B": 1}, got); diff != "" {
		t.Errorf("reply mismatch:\n%s", diff)
	}
}

func TestClientApply_Error(t *testing.T) {
	mock := &mockConn{err: errors.New("rpc failed")}
	c := NewClientWithConn(mock, 0)

	_, err := c.Apply(context.Background(), attribute.Mapping{"A": 1})
	if !errors.Is(err, mock.err) {
		t.Fatalf("expected wrapped rpc error, got: %v", err)
	}
}

func TestClientApply_NonNumericReply(t *testing.T) {
	resp := &structpb.Struct{Fields: map[string]*structpb.Value{"A": structpb.NewStringValue("high")}}
	c := NewClientWithConn(&mockConn{resp: resp}, 0)
	if _, err := c.Apply(context.Background(), attribute.Mapping{"A": 1}); err == nil {
		t.Fatal("expected error for non-numeric reply")
	}
}

func TestDialAndClose(t *testing.T) {
	c, err := Dial("localhost:0", time.Second)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := NewClientWithConn(&mockConn{}, 0).Close(); err != nil {
		t.Fatalf("Close on borrowed conn: %v", err)
	}
}
// #endregion client-tests

// #region round-trip-tests
func startServer(t *testing.T, adj adjust.EthicalAdjuster) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterEthicsServer(srv, adj)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClientWithConn(conn, 5*time.Second)
}

func TestRoundTrip_WeaknessEngine(t *testing.T) {
	eng, _ := NewWeaknessEngine(Profile{Sensitivity: 1, Weaknesses: map[string]float64{"Corruption": 0.5}})
	c := startServer(t, eng)

	got, err := c.Apply(context.Background(), attribute.Mapping{"Corruption": 0.48, "Moral Cohesion": 1.188})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := attribute.Mapping{"Corruption": 0.24, "Moral Cohesion": 1.188}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("remote result mismatch:\n%s", diff)
	}
}

func TestRoundTrip_AdjusterFailure(t *testing.T) {
	failing := adjust.AdjusterFunc(func(context.Context, attribute.Mapping) (attribute.Mapping, error) {
		return nil, errors.New("profile unavailable")
	})
	c := startServer(t, failing)

	_, err := c.Apply(context.Background(), attribute.Mapping{"A": 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if status.Code(errors.Unwrap(err)) != codes.Internal {
		t.Errorf("expected Internal status, got %v", err)
	}
}
// #endregion round-trip-tests
