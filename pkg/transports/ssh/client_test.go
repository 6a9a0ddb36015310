package ssh

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func dialConfig(host string, port int) *Config {
	config := DefaultConfig(host, "deploy")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "secret"
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 2 * time.Second
	return config
}

func TestNewClient_InvalidConfig(t *testing.T) {
	if _, err := NewClient(&Config{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestClient_NotConnected(t *testing.T) {
	client, err := NewClient(dialConfig("example.com", 22), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.IsConnected() {
		t.Error("new client should not be connected")
	}
	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect() on idle client: %v", err)
	}

	_, err = client.ReadDir("/srv/install")
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "readdir" {
		t.Errorf("ReadDir() error = %v, want readdir TransportError", err)
	}
	if _, err := client.Open("/srv/install/app.yaml"); err == nil {
		t.Error("Open() should fail when not connected")
	}
}

func TestClient_URL(t *testing.T) {
	client, err := NewClient(dialConfig("files.example.com", 2222), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "sftp://deploy@files.example.com:2222/srv/install/app.yaml"
	if got := client.URL("/srv/install/app.yaml"); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}

	info := client.Info()
	if info.Host != "files.example.com" || info.Port != 2222 || info.Connected {
		t.Errorf("Info() = %+v", info)
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	l.Close()

	client, err := NewClient(dialConfig("127.0.0.1", port), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.Connect(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Connect() error = %v, want TransportError", err)
	}
	if terr.Op != "connect" || !terr.Temporary() {
		t.Errorf("error = %+v, want temporary connect error", terr)
	}
	if client.IsConnected() {
		t.Error("client should not be connected")
	}
}

func TestClient_ConnectCanceled(t *testing.T) {
	// accepts but never speaks SSH, so the handshake blocks
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)

	client, err := NewClient(dialConfig("127.0.0.1", port), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.Connect(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want deadline exceeded", err)
	}
}
