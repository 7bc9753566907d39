// Package transport implements the BACnet/IP data link: a UDP socket plus
// the BVLC and NPDU envelopes around each APDU. Callers above this package
// see only APDU octets and peer addresses.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// UDPTransport carries APDUs over BACnet/IP (Annex J) UDP framing.
type UDPTransport struct {
	localAddr    string
	conn         *net.UDPConn
	mu           sync.RWMutex
	readTimeout  time.Duration
	writeTimeout time.Duration
	closed       bool
}

// NewUDPTransport creates a new UDP transport bound to localAddr, or to an
// ephemeral port when localAddr is empty.
func NewUDPTransport(localAddr string) *UDPTransport {
	return &UDPTransport{
		localAddr:    localAddr,
		readTimeout:  3 * time.Second,
		writeTimeout: 3 * time.Second,
	}
}

// SetReadTimeout sets the default read timeout used when the context
// carries no deadline.
func (t *UDPTransport) SetReadTimeout(d time.Duration) {
	t.mu.Lock()
	t.readTimeout = d
	t.mu.Unlock()
}

// SetWriteTimeout sets the default write timeout used when the context
// carries no deadline.
func (t *UDPTransport) SetWriteTimeout(d time.Duration) {
	t.mu.Lock()
	t.writeTimeout = d
	t.mu.Unlock()
}

// Open opens the UDP connection
func (t *UDPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.closed {
		return nil
	}

	var addr *net.UDPAddr
	var err error

	if t.localAddr != "" {
		addr, err = net.ResolveUDPAddr("udp4", t.localAddr)
		if err != nil {
			return fmt.Errorf("resolve local address: %w", err)
		}
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	t.conn = conn
	t.closed = false
	return nil
}

// Close closes the UDP connection
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return nil
	}

	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the local address
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *UDPTransport) sendRaw(ctx context.Context, addr *net.UDPAddr, data []byte) error {
	t.mu.RLock()
	conn := t.conn
	writeTimeout := t.writeTimeout
	t.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("transport not open")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	n, err := conn.WriteToUDP(data, addr)
	if err != nil {
		return fmt.Errorf("write UDP: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("partial write: %d of %d bytes", n, len(data))
	}

	return nil
}

// Send frames an APDU as an original-unicast NPDU and transmits it.
// expectingReply is set for confirmed requests so routers prioritize the
// return path.
func (t *UDPTransport) Send(ctx context.Context, addr *net.UDPAddr, apdu []byte, expectingReply bool) error {
	return t.sendRaw(ctx, addr, wrapAPDU(bvlcOriginalUnicast, apdu, expectingReply))
}

// Broadcast frames an APDU as an original-broadcast NPDU and transmits it
// to the local broadcast address on the given port.
func (t *UDPTransport) Broadcast(ctx context.Context, port int, apdu []byte) error {
	addr := &net.UDPAddr{
		IP:   net.IPv4bcast,
		Port: port,
	}
	return t.sendRaw(ctx, addr, wrapAPDU(bvlcOriginalBroadcast, apdu, false))
}

// RegisterForeignDevice registers with a BBMD so broadcasts on the remote
// subnet reach this transport.
func (t *UDPTransport) RegisterForeignDevice(ctx context.Context, bbmd *net.UDPAddr, ttl time.Duration) error {
	seconds := ttl / time.Second
	if seconds <= 0 || seconds > 0xFFFF {
		return fmt.Errorf("foreign device TTL out of range: %v", ttl)
	}
	return t.sendRaw(ctx, bbmd, registerForeignDevice(uint16(seconds)))
}

// Receive reads datagrams until one carries an APDU, then returns the APDU
// octets and the originating address. Forwarded frames report the original
// source, not the BBMD.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	t.mu.RLock()
	conn := t.conn
	readTimeout := t.readTimeout
	t.mu.RUnlock()

	if conn == nil {
		return nil, nil, fmt.Errorf("transport not open")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(readTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, 1500) // MTU size
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, nil, err
		}
		apdu, origin, err := unwrapDatagram(buf[:n], addr)
		if err != nil {
			return nil, nil, err
		}
		if apdu == nil {
			// Network layer or BVLC control traffic; keep reading.
			continue
		}
		out := make([]byte, len(apdu))
		copy(out, apdu)
		return out, origin, nil
	}
}

// ReceiveWithTimeout receives one APDU with a specific timeout
func (t *UDPTransport) ReceiveWithTimeout(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.Receive(ctx)
}

// IsClosed returns true if the transport is closed
func (t *UDPTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
