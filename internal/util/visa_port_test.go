package util

import (
	"net"
	"strings"
	"testing"
)

func TestOpenResource_Unsupported(t *testing.T) {
	if _, err := OpenResource("GPIB0::16::INSTR"); err == nil {
		t.Fatal("Expected error for unsupported resource type")
	}
	if _, err := OpenResource("TCPIP::host::INSTR"); err == nil {
		t.Fatal("Expected error for TCPIP resource without SOCKET")
	}
}

// TCPIP-ресурс подключается к сырому сокету прибора
func TestOpenResource_TCPSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	rsrc := strings.Join([]string{"TCPIP", host, port, "SOCKET"}, "::")
	p, err := OpenResource(rsrc)
	if err != nil {
		t.Fatalf("OpenResource failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
