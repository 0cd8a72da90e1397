package vxi11

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/internal/protocol/rpc"
	"github.com/marmos91/gpibgate/internal/protocol/vxi11"
)

// connection serves one TCP client. It owns at most one link.
type connection struct {
	server *Adapter
	conn   net.Conn
	reader *bufio.Reader
	id     string
	addr   string

	link *link
}

func newConnection(server *Adapter, conn net.Conn) *connection {
	return &connection{
		server: server,
		conn:   conn,
		reader: bufio.NewReader(conn),
		id:     uuid.NewString()[:8],
		addr:   conn.RemoteAddr().String(),
	}
}

// Serve handles requests in arrival order until the client disconnects,
// a transport error occurs or ctx is cancelled. The link held by the
// connection, if any, is released on the way out.
func (c *connection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[%s] Panic in VXI-11 connection handler from %s: %v\n%s",
				c.id, c.addr, r, debug.Stack())
		}
		c.releaseLink()
		_ = c.conn.Close()
	}()

	logger.Debug("[%s] New VXI-11 connection from %s", c.id, c.addr)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("[%s] Connection closed due to shutdown", c.id)
			return
		default:
		}

		closeAfter, err := c.handleRequest(ctx)
		if err != nil {
			c.logExit(err)
			return
		}
		if closeAfter {
			logger.Debug("[%s] Closing connection after DESTROY_LINK", c.id)
			return
		}
	}
}

func (c *connection) logExit(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug("[%s] Connection from %s closed due to shutdown", c.id, c.addr)
	case errors.Is(err, io.EOF):
		logger.Debug("[%s] Connection from %s closed by client", c.id, c.addr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("[%s] Connection from %s timed out: %v", c.id, c.addr, err)
	case errors.Is(err, net.ErrClosed):
		logger.Debug("[%s] Connection from %s closed", c.id, c.addr)
	default:
		logger.Warn("[%s] Dropping connection from %s: %v", c.id, c.addr, err)
	}
}

// handleRequest reads one record, dispatches it and writes the reply.
// A returned error ends the connection; a malformed call does not.
func (c *connection) handleRequest(ctx context.Context) (bool, error) {
	cfg := &c.server.config

	// wait for the next request under the idle timeout, then read it whole
	// under the read timeout
	if err := c.setReadDeadline(cfg.Timeouts.Idle); err != nil {
		return false, err
	}
	// shutdown may have set its wake-up deadline just before ours
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := c.reader.Peek(1); err != nil {
		return false, err
	}
	if err := c.setReadDeadline(cfg.Timeouts.Read); err != nil {
		return false, err
	}

	message, err := rpc.ReadRecord(c.reader, cfg.maxRecordSize())
	if err != nil {
		return false, fmt.Errorf("read record: %w", err)
	}

	call, err := rpc.ReadCall(message)
	if err != nil {
		logger.Debug("[%s] Discarding malformed RPC call: %v", c.id, err)
		return false, nil
	}

	args, err := rpc.ReadData(message, call)
	if err != nil {
		logger.Debug("[%s] Discarding RPC call with bad header: %v", c.id, err)
		return false, nil
	}

	logger.Debug("[%s] RPC call: xid=0x%x prog=0x%x vers=%d proc=%s",
		c.id, call.XID, call.Program, call.Version, vxi11.ProcedureName(call.Procedure))

	reply, closeAfter, err := c.dispatch(ctx, call, args)
	if err != nil {
		return false, err
	}

	if err := c.sendReply(reply); err != nil {
		return false, err
	}

	return closeAfter && cfg.CloseOnDestroy, nil
}

func (c *connection) setReadDeadline(d time.Duration) error {
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	return nil
}

// dispatch routes a call to its procedure and returns the unframed reply.
func (c *connection) dispatch(ctx context.Context, call *rpc.RPCCallMessage, args []byte) ([]byte, bool, error) {
	if call.Program != vxi11.Program {
		logger.Debug("[%s] Unknown program 0x%x", c.id, call.Program)
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCProgUnavail, nil)
		return reply, false, err
	}
	if call.Version != vxi11.Version {
		logger.Debug("[%s] Unsupported DEVICE_CORE version %d", c.id, call.Version)
		reply, err := rpc.EncodeMismatchReply(call.XID, vxi11.Version, vxi11.Version)
		return reply, false, err
	}

	handler, ok := procedures[call.Procedure]
	if !ok {
		logger.Debug("[%s] Unsupported procedure %d", c.id, call.Procedure)
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCProcUnavail, nil)
		return reply, false, err
	}

	name := vxi11.ProcedureName(call.Procedure)
	start := time.Now()
	result, err := handler(c, ctx, args)
	duration := time.Since(start)

	if err != nil {
		logger.Debug("[%s] %s: garbage arguments: %v", c.id, name, err)
		c.server.metrics.RecordRequest(name, duration, "GARBAGE_ARGS")
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCGarbageArgs, nil)
		return reply, false, err
	}

	errorCode := ""
	if result.code != vxi11.ErrNoError {
		errorCode = vxi11.ErrorName(result.code)
		logger.Debug("[%s] %s -> %s", c.id, name, errorCode)
	}
	c.server.metrics.RecordRequest(name, duration, errorCode)

	body, err := vxi11.Encode(result.body)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s result: %w", name, err)
	}

	reply, err := rpc.EncodeReply(call.XID, rpc.RPCSuccess, body)
	return reply, result.closeAfter, err
}

func (c *connection) sendReply(reply []byte) error {
	if c.server.config.Timeouts.Write > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.Timeouts.Write)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := c.conn.Write(rpc.AddRecordMark(reply)); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// releaseLink gives the connection's link back to the bridge and the slot
// table.
func (c *connection) releaseLink() {
	l := c.link
	if l == nil {
		return
	}
	c.link = nil

	if l.instrument != nil {
		l.instrument.Release()
	}
	c.server.links.free(l)
	c.server.metrics.SetActiveLinks(c.server.links.count())

	logger.Debug("[%s] Link %d to address %d released after %v",
		c.id, l.id, l.address, time.Since(l.createdAt).Round(time.Millisecond))
}
