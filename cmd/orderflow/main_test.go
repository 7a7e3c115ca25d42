package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/marketdata"
	"orderflow/internal/order"
	"orderflow/internal/venue"
)

func TestParseRunArgs(t *testing.T) {
	scenario, rate, err := parseRunArgs([]string{"2", "5"})
	if err != nil {
		t.Fatalf("parseRunArgs returned error: %v", err)
	}
	if scenario != "2" || rate != 5 {
		t.Errorf("unexpected result %q/%d", scenario, rate)
	}

	for _, args := range [][]string{nil, {"1"}, {"1", "0"}, {"1", "-3"}, {"1", "fast"}, {"1", "2", "3"}} {
		if _, _, err := parseRunArgs(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestRootCommand_RejectsMissingArguments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"1"})
	cmd.SetOut(discard{})
	cmd.SetErr(discard{})
	if err := cmd.Execute(); err == nil {
		t.Errorf("expected error for missing rate argument")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRegionWriter_OverwritesLatestFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.region")
	region, err := openRegion(path, 256)
	if err != nil {
		t.Fatalf("openRegion returned error: %v", err)
	}
	defer region.Close()

	big := marketdata.NewSnapshot(
		[]marketdata.Level{{Price: 50000, Quantity: 300}, {Price: 49990, Quantity: 100}},
		[]marketdata.Level{{Price: 50010, Quantity: 200}},
		50005, 1,
	)
	small := marketdata.NewSnapshot(nil, []marketdata.Level{{Price: 10, Quantity: 100}}, 0, 2)
	for _, s := range []marketdata.Snapshot{big, small} {
		if err := region.Write(s); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read region: %v", err)
	}
	if len(data) != 256 {
		t.Errorf("region size %d, want 256", len(data))
	}
	got, err := marketdata.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame returned error: %v", err)
	}
	if got.Timestamp != 2 || len(got.Bids) != 0 || got.BestAsk != 10 {
		t.Errorf("expected latest snapshot, got %+v", got)
	}

	if _, err := openRegion(path, marketdata.HeaderSize); err == nil {
		t.Errorf("expected error for region without room for a payload")
	}
}

func TestRunSink_AcknowledgesOrders(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runSink(ctx, addr, venue.DefaultService, zap.NewNop()) }()

	client, err := venue.NewClient(venue.Config{Address: addr, SubmitTimeout: time.Second, RedialInterval: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		outcome, err := client.Submit(context.Background(), order.Order{ID: 1, Price: 100, Quantity: 100})
		if err == nil {
			if outcome.Status != "ACCEPTED" {
				t.Errorf("unexpected status %q", outcome.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sink never accepted the order: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runSink returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("sink did not stop after cancellation")
	}
}
