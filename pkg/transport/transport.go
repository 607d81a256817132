package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// RecvBufferSize is the largest datagram Recv will return in full.
const RecvBufferSize = 2048

var _ Transport = (*impl)(nil)

type Transport interface {
	Recv(ctx context.Context) (src string, b []byte, err error) // src is "ip:port"
	Send(dst string, b []byte) error
	LocalAddr() string
	Close() error
}

type impl struct {
	conn *net.UDPConn
}

func NewTransport(listen string) (Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr %q: %w", listen, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	return &impl{conn: conn}, nil
}

func (i *impl) Recv(ctx context.Context) (string, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := i.conn.SetReadDeadline(deadline); err != nil {
			return "", nil, err
		}
		defer i.conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	}

	buf := make([]byte, RecvBufferSize)
	n, addr, err := i.conn.ReadFromUDP(buf)
	if err != nil {
		return "", nil, err
	}

	return addr.String(), buf[:n], nil
}

func (i *impl) Send(dst string, b []byte) error {
	addr, err := net.ResolveUDPAddr("udp", dst)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", dst, err)
	}

	if _, err = i.conn.WriteToUDP(b, addr); err != nil {
		return err
	}

	return nil
}

func (i *impl) LocalAddr() string {
	return i.conn.LocalAddr().String()
}

func (i *impl) Close() error {
	return i.conn.Close()
}
