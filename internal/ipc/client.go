package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CaptureStart writes Capture=1.
func (c *Client) CaptureStart() (*CaptureResponse, error) {
	var resp CaptureResponse
	if err := c.call("CaptureStart", CaptureRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CaptureStop writes Capture=0 and waits for the session to finish.
func (c *Client) CaptureStop() (*CaptureResponse, error) {
	var resp CaptureResponse
	if err := c.call("CaptureStop", CaptureRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttrList lists attributes whose name starts with prefix.
func (c *Client) AttrList(prefix string) (*AttrListResponse, error) {
	var resp AttrListResponse
	if err := c.call("AttrList", AttrListRequest{Prefix: prefix}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttrGet reads one attribute.
func (c *Client) AttrGet(name string) (*AttrResponse, error) {
	var resp AttrResponse
	if err := c.call("AttrGet", AttrGetRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttrPut writes one attribute.
func (c *Client) AttrPut(name string, value any) (*AttrResponse, error) {
	var resp AttrResponse
	if err := c.call("AttrPut", AttrPutRequest{Name: name, Value: value}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TableList lists configured tables.
func (c *Client) TableList() (*TableListResponse, error) {
	var resp TableListResponse
	if err := c.call("TableList", TableListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TableShow fetches one table.
func (c *Client) TableShow(name string) (*TableShowResponse, error) {
	var resp TableShowResponse
	if err := c.call("TableShow", TableShowRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sessions lists recent capture sessions.
func (c *Client) Sessions(limit int) (*SessionsResponse, error) {
	var resp SessionsResponse
	if err := c.call("Sessions", SessionsRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logs fetches log events from the daemon's in-memory buffer.
func (c *Client) Logs(req LogsRequest) (*LogsResponse, error) {
	var resp LogsResponse
	if err := c.call("Logs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
