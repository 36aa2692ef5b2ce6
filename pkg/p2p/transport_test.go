package p2p

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPTransportCall(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		peer := NewTCPPeer(conn, Decoder{}, time.Second)
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		req := msg.Payload.(LocalSearchRequest)
		peer.Send(&Message{Payload: LocalSearchResponse{
			Status:   StatusSuccess,
			FileInfo: []FileInfo{{Filename: req.Regex, Size: 3}},
		}})
	}()

	tr := NewTCPTransport(TCPTransportOptions{DialTimeout: time.Second, IOTimeout: time.Second})
	resp, err := tr.Call(context.Background(), ln.Addr().String(), &Message{Payload: LocalSearchRequest{Regex: "echo"}})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	got, ok := resp.Payload.(LocalSearchResponse)
	if !ok {
		t.Fatalf("expected LocalSearchResponse, got %T", resp.Payload)
	}
	if len(got.FileInfo) != 1 || got.FileInfo[0].Filename != "echo" {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestTCPTransportCallRefused(t *testing.T) {
	// grab a port and release it so nothing is listening there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tr := NewTCPTransport(TCPTransportOptions{DialTimeout: time.Second})
	if _, err := tr.Call(context.Background(), addr, &Message{Payload: SearchRequest{}}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestTCPTransportCallTimesOut(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// accept and never answer
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	tr := NewTCPTransport(TCPTransportOptions{DialTimeout: time.Second, IOTimeout: 200 * time.Millisecond})
	start := time.Now()
	if _, err := tr.Call(context.Background(), ln.Addr().String(), &Message{Payload: SearchRequest{}}); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 1500*time.Millisecond {
		t.Fatal("call was not cut short by the io timeout")
	}
}

func TestParseNode(t *testing.T) {
	n, err := ParseNode("192.168.1.4:8004")
	if err != nil {
		t.Fatal(err)
	}
	if n.Host != "192.168.1.4" || n.Port != 8004 {
		t.Fatalf("unexpected node %+v", n)
	}
	if n.Addr() != "192.168.1.4:8004" {
		t.Fatalf("unexpected addr %s", n.Addr())
	}
	if _, err := ParseNode("no-port"); err == nil {
		t.Fatal("expected error for missing port")
	}
	if _, err := ParseNode("host:99999"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}
