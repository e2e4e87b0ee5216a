package listener

import (
	"fmt"
	"net"
)

// Listen binds the UDP socket packets arrive on.
func Listen(addr string) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", addr, err)
	}
	return conn, nil
}
