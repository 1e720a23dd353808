package coordination

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

// Client speaks the coordination wire protocol over a single persistent
// TCP connection, mirroring one worker subprocess's PABOTLIBURI.
type Client struct {
	conn     net.Conn
	scanner  *bufio.Scanner
	writer   *bufio.Writer
	callerID string
}

// Dial connects to a coordination Server at addr and registers callerID.
func Dial(addr, callerID string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial coordination server %s: %w", addr, err)
	}

	c := &Client{
		conn:     conn,
		scanner:  bufio.NewScanner(conn),
		writer:   bufio.NewWriter(conn),
		callerID: callerID,
	}
	c.scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	if _, err := c.call(Request{Op: OpRegister, CallerID: callerID}); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Close deregisters and closes the underlying connection.
func (c *Client) Close() error {
	_, _ = c.call(Request{Op: OpDeregister, CallerID: c.callerID})
	return c.conn.Close()
}

// Ping exercises the liveness op so the server knows this worker is alive.
func (c *Client) Ping() error {
	_, err := c.call(Request{Op: OpPing, CallerID: c.callerID})
	return err
}

// AcquireLock blocks, polling the server, until the named lock is granted
// or ctx is done.
func (c *Client) AcquireLock(ctx context.Context, name string) error {
	for {
		resp, err := c.call(Request{Op: OpAcquireLock, CallerID: c.callerID, Args: []string{name}})
		if err != nil {
			return err
		}
		if resp.Status == "OK" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// ReleaseLock releases a lock previously granted to this client.
func (c *Client) ReleaseLock(name string) error {
	_, err := c.call(Request{Op: OpReleaseLock, CallerID: c.callerID, Args: []string{name}})
	return err
}

// SetParallelValue stores a key/value pair visible to every worker.
func (c *Client) SetParallelValue(key, value string) error {
	_, err := c.call(Request{Op: OpSetParallelValue, CallerID: c.callerID, Args: []string{key, value}})
	return err
}

// GetParallelValue retrieves a previously stored key/value pair.
func (c *Client) GetParallelValue(key string) (string, error) {
	resp, err := c.call(Request{Op: OpGetParallelValue, CallerID: c.callerID, Args: []string{key}})
	if err != nil {
		return "", err
	}
	if len(resp.Fields) == 0 {
		return "", nil
	}
	return resp.Fields[0], nil
}

// AcquireValueSet leases an unleased ValueSet matching tag
// (case-insensitive) and returns its name. Pass "" to consider every
// ValueSet regardless of tag.
func (c *Client) AcquireValueSet(tag string) (string, error) {
	var args []string
	if tag != "" {
		args = []string{tag}
	}
	resp, err := c.call(Request{Op: OpAcquireValueSet, CallerID: c.callerID, Args: args})
	if err != nil {
		return "", err
	}
	if len(resp.Fields) == 0 {
		return "", nil
	}
	return resp.Fields[0], nil
}

// GetValueFromSet reads key from the ValueSet this client currently leases.
func (c *Client) GetValueFromSet(key string) (string, error) {
	resp, err := c.call(Request{Op: OpGetValueFromSet, CallerID: c.callerID, Args: []string{key}})
	if err != nil {
		return "", err
	}
	if len(resp.Fields) == 0 {
		return "", nil
	}
	return resp.Fields[0], nil
}

// AddValueToSet inserts a new ValueSet named name at runtime. mapping's
// "tags" entry, if present, becomes the set's comma-separated tag list.
func (c *Client) AddValueToSet(name string, mapping map[string]string) error {
	args := make([]string, 0, 1+2*len(mapping))
	args = append(args, name)
	for k, v := range mapping {
		args = append(args, k, v)
	}
	_, err := c.call(Request{Op: OpAddValueToSet, CallerID: c.callerID, Args: args})
	return err
}

// ReleaseValueSet releases this client's current ValueSet lease, if any.
func (c *Client) ReleaseValueSet() error {
	_, err := c.call(Request{Op: OpReleaseValueSet, CallerID: c.callerID})
	return err
}

// RunOnlyOnce reports whether this call is the first for name across every
// connected worker.
func (c *Client) RunOnlyOnce(name string) (bool, error) {
	resp, err := c.call(Request{Op: OpRunOnlyOnce, CallerID: c.callerID, Args: []string{name}})
	if err != nil {
		return false, err
	}
	return len(resp.Fields) > 0 && resp.Fields[0] == "1", nil
}

func (c *Client) call(req Request) (Response, error) {
	c.writer.WriteString(EncodeRequest(req))
	c.writer.WriteByte('\n')
	if err := c.writer.Flush(); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	line, ok := readLine(c.scanner)
	if !ok {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		return Response{}, fmt.Errorf("coordination server closed connection")
	}

	resp, err := DecodeResponse(line)
	if err != nil {
		return Response{}, err
	}
	if resp.Status == "ERROR" {
		msg := "coordination server error"
		if len(resp.Fields) > 0 {
			msg = resp.Fields[0]
		}
		return resp, fmt.Errorf("%s", msg)
	}
	return resp, nil
}
