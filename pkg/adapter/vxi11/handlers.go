package vxi11

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/internal/protocol/vxi11"
	"github.com/marmos91/gpibgate/pkg/bus"
)

// result is what a procedure handler produces: the XDR result body, its
// device error code and whether the connection may close after the reply.
type result struct {
	body       any
	code       uint32
	closeAfter bool
}

// procedureHandler decodes args and runs one procedure. A returned error
// means the arguments could not be decoded (GARBAGE_ARGS); device level
// failures are reported through result.code.
type procedureHandler func(c *connection, ctx context.Context, args []byte) (*result, error)

var procedures = map[uint32]procedureHandler{
	vxi11.ProcCreateLink:  (*connection).createLink,
	vxi11.ProcDeviceWrite: (*connection).deviceWrite,
	vxi11.ProcDeviceRead:  (*connection).deviceRead,
	vxi11.ProcDestroyLink: (*connection).destroyLink,
}

func (c *connection) createLink(ctx context.Context, args []byte) (*result, error) {
	p, err := vxi11.DecodeCreateLinkParms(args)
	if err != nil {
		return nil, err
	}

	fail := func(code uint32) (*result, error) {
		return &result{body: &vxi11.CreateLinkResp{Error: code}, code: code}, nil
	}

	if c.link != nil {
		logger.Debug("[%s] CREATE_LINK %q: connection already holds link %d", c.id, p.Device, c.link.id)
		return fail(vxi11.ErrOutOfResources)
	}

	l := c.server.links.reserve(c.id)
	if l == nil {
		logger.Debug("[%s] CREATE_LINK %q: no free link slot", c.id, p.Device)
		return fail(vxi11.ErrOutOfResources)
	}

	address, err := vxi11.ParseDeviceName(p.Device)
	if err != nil {
		c.server.links.free(l)
		logger.Debug("[%s] CREATE_LINK: %v", c.id, err)
		return fail(vxi11.ErrParameter)
	}

	inst := c.server.getInstrument()
	if inst == nil || !inst.Claim() {
		c.server.links.free(l)
		logger.Debug("[%s] CREATE_LINK %q: bus cannot take another link", c.id, p.Device)
		return fail(vxi11.ErrOutOfResources)
	}

	l.address = address
	l.instrument = inst
	c.link = l
	c.server.metrics.SetActiveLinks(c.server.links.count())

	logger.Info("[%s] Link %d created for %s to %q (address %d)", c.id, l.id, c.addr, p.Device, address)

	return &result{body: &vxi11.CreateLinkResp{
		Error:       vxi11.ErrNoError,
		LinkID:      l.id,
		AbortPort:   0,
		MaxRecvSize: c.server.config.MaxRecvSize,
	}}, nil
}

func (c *connection) deviceWrite(ctx context.Context, args []byte) (*result, error) {
	p, err := vxi11.DecodeDeviceWriteParms(args)
	if err != nil {
		return nil, err
	}

	fail := func(code uint32) (*result, error) {
		return &result{body: &vxi11.DeviceWriteResp{Error: code}, code: code}, nil
	}

	l := c.ownLink(p.LinkID)
	if l == nil {
		return fail(vxi11.ErrInvalidLinkIdentifier)
	}

	l.pending = append(l.pending, p.Data...)
	if len(l.pending) > c.server.config.maxPendingWrite() {
		logger.Warn("[%s] Link %d: %d bytes written without END, discarding", c.id, l.id, len(l.pending))
		l.pending = nil
		return fail(vxi11.ErrOutOfResources)
	}

	if p.Flags&vxi11.FlagEnd != 0 || c.server.config.IgnoreEndFlag {
		if err := c.flush(ctx, l, p.IOTimeout); err != nil {
			logger.Debug("[%s] Link %d: write to address %d failed: %v", c.id, l.id, l.address, err)
			return fail(busErrorCode(err))
		}
	}

	return &result{body: &vxi11.DeviceWriteResp{
		Error: vxi11.ErrNoError,
		Size:  uint32(len(p.Data)),
	}}, nil
}

func (c *connection) deviceRead(ctx context.Context, args []byte) (*result, error) {
	p, err := vxi11.DecodeDeviceReadParms(args)
	if err != nil {
		return nil, err
	}

	fail := func(code uint32) (*result, error) {
		return &result{body: &vxi11.DeviceReadResp{Error: code}, code: code}, nil
	}

	l := c.ownLink(p.LinkID)
	if l == nil {
		return fail(vxi11.ErrInvalidLinkIdentifier)
	}

	// data written without END is sent before the device is asked to talk
	if len(l.pending) > 0 {
		if err := c.flush(ctx, l, p.IOTimeout); err != nil {
			logger.Debug("[%s] Link %d: flush before read failed: %v", c.id, l.id, err)
			return fail(busErrorCode(err))
		}
	}

	size := min(p.RequestSize, c.server.config.MaxReadSize)
	ioCtx, cancel := c.ioContext(ctx, p.IOTimeout)
	defer cancel()

	data, err := l.instrument.Read(ioCtx, l.address, int(size))
	if err != nil {
		logger.Debug("[%s] Link %d: read from address %d failed: %v", c.id, l.id, l.address, err)
		return fail(busErrorCode(err))
	}
	if len(data) > int(size) {
		data = data[:size]
	}
	c.server.metrics.RecordBytesTransferred("read", uint64(len(data)))

	return &result{body: &vxi11.DeviceReadResp{
		Error:  vxi11.ErrNoError,
		Reason: vxi11.ReasonEnd,
		Data:   data,
	}}, nil
}

func (c *connection) destroyLink(ctx context.Context, args []byte) (*result, error) {
	p, err := vxi11.DecodeDeviceLink(args)
	if err != nil {
		return nil, err
	}

	if c.ownLink(p.LinkID) == nil {
		code := uint32(vxi11.ErrInvalidLinkIdentifier)
		return &result{body: &vxi11.DeviceError{Error: code}, code: code}, nil
	}

	c.releaseLink()

	return &result{
		body:       &vxi11.DeviceError{Error: vxi11.ErrNoError},
		closeAfter: true,
	}, nil
}

// ownLink returns the connection's link if id names it.
func (c *connection) ownLink(id uint32) *link {
	if c.link == nil || c.link.id != id {
		return nil
	}
	return c.link
}

// flush forwards the accumulated write data, stripped of trailing
// whitespace and control characters, and clears the buffer.
func (c *connection) flush(ctx context.Context, l *link, ioTimeout uint32) error {
	data := trimTrailing(l.pending)
	l.pending = nil
	if len(data) == 0 {
		return nil
	}

	ioCtx, cancel := c.ioContext(ctx, ioTimeout)
	defer cancel()

	if err := l.instrument.Write(ioCtx, l.address, data); err != nil {
		return err
	}
	c.server.metrics.RecordBytesTransferred("write", uint64(len(data)))
	return nil
}

// ioContext bounds one bus operation by the client's io_timeout in
// milliseconds, capped by the configured IO timeout.
func (c *connection) ioContext(ctx context.Context, ioTimeout uint32) (context.Context, context.CancelFunc) {
	limit := c.server.config.Timeouts.IO
	if d := time.Duration(ioTimeout) * time.Millisecond; d > 0 && d < limit {
		limit = d
	}
	return context.WithTimeout(ctx, limit)
}

func trimTrailing(data []byte) []byte {
	end := len(data)
	for end > 0 && (data[end-1] <= ' ' || data[end-1] == 0x7f) {
		end--
	}
	return data[:end]
}

// busErrorCode maps a bridge failure to a device error code.
func busErrorCode(err error) uint32 {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, bus.ErrTimeout) {
		return vxi11.ErrIOTimeout
	}
	return vxi11.ErrIOError
}
