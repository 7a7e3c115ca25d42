package marketdata

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"orderflow/internal/wire"
)

func sampleSnapshot() Snapshot {
	return NewSnapshot(
		[]Level{{Price: 50000, Quantity: 300}, {Price: 49990, Quantity: 100}},
		[]Level{{Price: 50010, Quantity: 200}},
		50005,
		1717407000000000000,
	)
}

func TestNewSnapshot_DerivesTopOfBook(t *testing.T) {
	s := sampleSnapshot()
	if s.BestBid != 50000 || s.BestAsk != 50010 || s.Spread != 10 {
		t.Errorf("unexpected top of book %+v", s)
	}

	empty := NewSnapshot(nil, []Level{{Price: 10, Quantity: 100}}, 0, 0)
	if empty.BestBid != 0 || empty.BestAsk != 10 || empty.Spread != 0 {
		t.Errorf("unexpected one-sided book %+v", empty)
	}
}

func TestFrame_RoundTripInFixedRegion(t *testing.T) {
	region := make([]byte, 1024)
	n, err := EncodeFrame(region, sampleSnapshot())
	if err != nil {
		t.Fatalf("EncodeFrame returned error: %v", err)
	}
	if declared := binary.LittleEndian.Uint32(region[:HeaderSize]); int(declared) != n-HeaderSize {
		t.Fatalf("header declares %d bytes, wrote %d", declared, n-HeaderSize)
	}

	got, err := DecodeFrame(region)
	if err != nil {
		t.Fatalf("DecodeFrame returned error: %v", err)
	}
	want := sampleSnapshot()
	if got.BestBid != want.BestBid || got.Spread != want.Spread || got.Timestamp != want.Timestamp ||
		len(got.Bids) != 2 || got.Bids[1] != want.Bids[1] || len(got.Asks) != 1 {
		t.Errorf("decoded snapshot mismatch: %+v", got)
	}
}

func TestFrame_Errors(t *testing.T) {
	if _, err := EncodeFrame(make([]byte, 8), sampleSnapshot()); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, err := DecodeFrame([]byte{1, 0}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("expected ErrShortFrame for short header, got %v", err)
	}
	if _, err := DecodeFrame([]byte{10, 0, 0, 0, 1, 2}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("expected ErrShortFrame for truncated payload, got %v", err)
	}
	if _, err := DecodeFrame(make([]byte, 64)); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame for zeroed region, got %v", err)
	}
}

func TestSnapshotWire_ProtobufLayout(t *testing.T) {
	s := NewSnapshot([]Level{{Price: 5, Quantity: 100}, {}}, nil, 0, 0)
	got := s.AppendWire(nil)

	// bids=1 两个元素（第二个为空消息），bestBid=4；其余零值省略。
	want := []byte{0x0a, 0x04, 0x08, 0x05, 0x10, 0x64, 0x0a, 0x00, 0x20, 0x05}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected encoding\n got % x\nwant % x", got, want)
	}

	var decoded Snapshot
	if err := decoded.UnmarshalWire(got); err != nil {
		t.Fatalf("UnmarshalWire returned error: %v", err)
	}
	if len(decoded.Bids) != 2 || decoded.Bids[0] != s.Bids[0] || decoded.BestBid != 5 {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestSnapshotWire_NegativeTimestamp(t *testing.T) {
	s := Snapshot{Timestamp: -1}
	var decoded Snapshot
	if err := decoded.UnmarshalWire(s.AppendWire(nil)); err != nil {
		t.Fatalf("UnmarshalWire returned error: %v", err)
	}
	if decoded.Timestamp != -1 {
		t.Errorf("timestamp %d, want -1", decoded.Timestamp)
	}
}

// bookService 为测试用的 SubscribeToOrderBook 服务端。
type bookService func(req *subscribeRequest, stream grpc.ServerStream) error

func startBookServer(t *testing.T, serve bookService) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer(grpc.ForceServerCodec(wire.Codec{}))
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: defaultService,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "SubscribeToOrderBook",
			ServerStreams: true,
			Handler: func(_ any, stream grpc.ServerStream) error {
				var req subscribeRequest
				if err := stream.RecvMsg(&req); err != nil {
					return err
				}
				return serve(&req, stream)
			},
		}},
	}, struct{}{})
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)
	return ln.Addr().String()
}

func TestDialFeed_ReceivesSnapshots(t *testing.T) {
	symbols := make(chan uint64, 1)
	addr := startBookServer(t, func(req *subscribeRequest, stream grpc.ServerStream) error {
		symbols <- req.SymbolID
		for i := 0; i < 3; i++ {
			s := sampleSnapshot()
			s.Timestamp += int64(i)
			if err := stream.SendMsg(s); err != nil {
				return err
			}
		}
		<-stream.Context().Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := DialFeed(ctx, FeedConfig{Address: addr, SymbolID: 7}, nil)
	if err != nil {
		t.Fatalf("DialFeed returned error: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case s, ok := <-sub.Snapshots():
			if !ok {
				t.Fatalf("channel closed after %d snapshots: %v", i, sub.Err())
			}
			if s.Timestamp != sampleSnapshot().Timestamp+int64(i) {
				t.Errorf("snapshot %d out of order: %d", i, s.Timestamp)
			}
			if len(s.Bids) != 2 || s.Spread != 10 {
				t.Errorf("snapshot %d decoded incorrectly: %+v", i, s)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for snapshot %d", i)
		}
	}
	if got := <-symbols; got != 7 {
		t.Errorf("server saw symbol %d, want 7", got)
	}

	cancel()
	waitClosed(t, sub)
	if err := sub.Err(); err != nil {
		t.Errorf("cancellation should not be an error, got %v", err)
	}
}

func TestDialFeed_ServerEndAndFailure(t *testing.T) {
	ended := startBookServer(t, func(_ *subscribeRequest, stream grpc.ServerStream) error {
		return stream.SendMsg(sampleSnapshot())
	})
	sub, err := DialFeed(context.Background(), FeedConfig{Address: ended}, nil)
	if err != nil {
		t.Fatalf("DialFeed returned error: %v", err)
	}
	waitClosed(t, sub)
	if err := sub.Err(); err != nil {
		t.Errorf("normal end of stream should not be an error, got %v", err)
	}

	failing := startBookServer(t, func(*subscribeRequest, grpc.ServerStream) error {
		return status.Error(codes.NotFound, "unknown symbol")
	})
	sub, err = DialFeed(context.Background(), FeedConfig{Address: failing, SymbolID: 99}, nil)
	if err != nil {
		t.Fatalf("DialFeed returned error: %v", err)
	}
	waitClosed(t, sub)
	if status.Code(errors.Unwrap(sub.Err())) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", sub.Err())
	}
}

func TestDeliver_DropsOldestWhenFull(t *testing.T) {
	s := &FeedSubscriber{out: make(chan Snapshot, 2)}
	for i := int64(1); i <= 5; i++ {
		s.deliver(Snapshot{Timestamp: i})
	}
	if s.Dropped() != 3 {
		t.Errorf("expected 3 dropped snapshots, got %d", s.Dropped())
	}
	if first := <-s.out; first.Timestamp != 4 {
		t.Errorf("expected oldest kept snapshot 4, got %d", first.Timestamp)
	}
}

func waitClosed(t *testing.T, sub *FeedSubscriber) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Snapshots():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("snapshot channel not closed")
		}
	}
}
