package main

import (
	"context"
	"net"
	"testing"
	"time"
)

// End-to-end proxy mode: probe, worker startup, control socket service, and
// a clean shutdown via the control verb.
func TestProxyModeEndToEnd(t *testing.T) {
	fake := newFakeUpstream(t, func(connIndex int, conn net.Conn) {
		handleSubscribeAuth(t, conn)
		writeLineTo(t, conn, notifyLine("first-job", true))
		time.Sleep(2 * time.Second)
	})

	cfg := defaultConfig()
	cfg.Proxy = true
	cfg.DataDir = t.TempDir()
	cfg.Upstreams = []EndpointConfig{{URL: fake.addr(), Auth: "pooluser", Pass: "x"}}

	notifier := newRecordingNotifier()
	ret := make(chan int, 1)
	go func() {
		ret <- proxyMode(context.Background(), cfg, notifier, newGenMetrics())
	}()

	// The startup handshake announces subscribe+notify before serving.
	notifier.wait(t, msgSubscribe, 2*time.Second)

	sock := controlSocketPath(cfg)
	waitForSocket(t, sock)
	if got := controlRequest(t, sock, "ping"); got != "pong" {
		t.Fatalf("ping reply %q", got)
	}
	if got := controlRequest(t, sock, "getsubscribe"); got == "Failed" || got == "" {
		t.Fatalf("getsubscribe reply %q", got)
	}

	controlRequest(t, sock, "shutdown")
	select {
	case code := <-ret:
		if code != 0 {
			t.Fatalf("exit code %d on clean shutdown", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("proxy mode did not exit after shutdown")
	}
}

func TestProxyModeNoLiveUpstream(t *testing.T) {
	cfg := defaultConfig()
	cfg.Proxy = true
	cfg.DataDir = t.TempDir()
	cfg.Upstreams = []EndpointConfig{{URL: "127.0.0.1:1", Auth: "u", Pass: "p"}}

	if code := proxyMode(context.Background(), cfg, newRecordingNotifier(), newGenMetrics()); code != 1 {
		t.Fatalf("expected exit code 1 with no live upstream, got %d", code)
	}
}

// Server mode end-to-end over the real control socket.
func TestServerModeEndToEnd(t *testing.T) {
	fake := newFakeNode(t)

	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.BTCAddress = "1BitcoinEaterAddressDontSendf59kuE"
	cfg.BTCDs = []EndpointConfig{{URL: fake.srv.URL, Auth: "u", Pass: "p"}}

	notifier := newRecordingNotifier()
	ret := make(chan int, 1)
	go func() {
		ret <- serverMode(context.Background(), cfg, notifier, newGenMetrics())
	}()

	sock := controlSocketPath(cfg)
	waitForSocket(t, sock)
	if got := controlRequest(t, sock, "getbest"); got == "Failed" || got == "" {
		t.Fatalf("getbest reply %q", got)
	}
	controlRequest(t, sock, "submitblock:"+genesisHeaderHex)
	notifier.wait(t, msgUpdate, 2*time.Second)

	controlRequest(t, sock, "shutdown")
	select {
	case code := <-ret:
		if code != 0 {
			t.Fatalf("exit code %d on clean shutdown", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server mode did not exit after shutdown")
	}
}

func TestServerModeNoLiveNode(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.BTCAddress = "1BitcoinEaterAddressDontSendf59kuE"
	cfg.BTCDs = []EndpointConfig{{URL: "http://127.0.0.1:1/", Auth: "u", Pass: "p"}}

	if code := serverMode(context.Background(), cfg, newRecordingNotifier(), newGenMetrics()); code != 1 {
		t.Fatalf("expected exit code 1 with no live node, got %d", code)
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("control socket %s never came up: %v", path, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
