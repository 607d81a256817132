package control

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
)

const clientTimeout = 10 * time.Second

type Client struct {
	status   *connect.Client[StatusRequest, StatusResponse]
	register *connect.Client[RegisterRequest, RegisterResponse]
}

// NewClient talks gRPC over HTTP/2 cleartext to the control socket at path.
func NewClient(path string) *Client {
	transport := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, _, _ string, _ *tls.Config) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "unix", path)
		},
	}

	return newClient(&http.Client{Timeout: clientTimeout, Transport: transport}, "http://unix")
}

func newClient(httpClient connect.HTTPClient, baseURL string) *Client {
	opts := []connect.ClientOption{connect.WithGRPC(), connect.WithCodec(jsonCodec{})}
	return &Client{
		status:   connect.NewClient[StatusRequest, StatusResponse](httpClient, baseURL+StatusProcedure, opts...),
		register: connect.NewClient[RegisterRequest, RegisterResponse](httpClient, baseURL+RegisterProcedure, opts...),
	}
}

func (c *Client) Status(ctx context.Context, events int) (*StatusResponse, error) {
	resp, err := c.status.CallUnary(ctx, connect.NewRequest(&StatusRequest{Events: events}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	resp, err := c.register.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
