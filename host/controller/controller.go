// Package controller drives a module chain from the host: it builds
// read_all, write_all and write_sequential transactions, paces them and
// validates what comes back from the last module.
package controller

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flapchain/host/serial"
	"flapchain/protocol"
)

// Transport is the byte pipe to the chain. protocol.HostTransport
// implements it.
type Transport interface {
	Write(msg []byte) error
	ReadFull(n int, timeout time.Duration) ([]byte, error)
	Drain() int
}

// Controller owns the chain. Transactions are serialized; only one is on
// the wire at any time.
type Controller struct {
	transport Transport
	closer    io.Closer

	registry *protocol.Registry
	log      zerolog.Logger
	metrics  *Metrics

	triggerDelay  time.Duration
	moduleTimeout time.Duration
	byteTimeout   time.Duration

	mu          sync.Mutex
	lastCmdTime time.Time
	modules     int
}

// Option configures a Controller
type Option func(*Controller)

// WithRegistry uses a custom property registry
func WithRegistry(r *protocol.Registry) Option {
	return func(c *Controller) {
		c.registry = r
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l.With().Str("component", "controller").Logger()
	}
}

// WithMetrics records transactions in m
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTiming overrides the pacing and reply timeouts. moduleTimeout is the
// idle window of the modules; byteTimeout is allowed per expected reply byte.
func WithTiming(triggerDelay, moduleTimeout, byteTimeout time.Duration) Option {
	return func(c *Controller) {
		c.triggerDelay = triggerDelay
		c.moduleTimeout = moduleTimeout
		c.byteTimeout = byteTimeout
	}
}

// New creates a controller on an open transport
func New(t Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:     t,
		registry:      protocol.DefaultRegistry(),
		log:           zerolog.Nop(),
		triggerDelay:  protocol.TriggerDelay,
		moduleTimeout: protocol.ModuleTimeout,
		byteTimeout:   50 * time.Millisecond,
	}
	if closer, ok := t.(io.Closer); ok {
		c.closer = closer
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the serial port in cfg and starts a controller on it
func Connect(cfg serial.Config, opts ...Option) (*Controller, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush serial port: %w", err)
	}
	return New(protocol.NewHostTransport(port), opts...), nil
}

// Close closes the transport
func (c *Controller) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Registry returns the property registry in use
func (c *Controller) Registry() *protocol.Registry {
	return c.registry
}

// Modules returns the module count seen by the last read_all
func (c *Controller) Modules() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modules
}

// ReadAll reads a property from every module. The result holds one value
// per module in chain order; dynamic values are returned without their
// length prefix. Reading PropertyNone only counts the modules.
func (c *Controller) ReadAll(ctx context.Context, id protocol.PropertyID) ([][]byte, error) {
	d, err := c.registry.Readable(id)
	if err != nil {
		return nil, err
	}
	header, err := protocol.EncodeHeader(protocol.Header{Property: id, Action: protocol.ActionReadAll})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readAll(ctx, header, d.Read)
	c.metrics.observe(protocol.ActionReadAll.String(), err)
	if err != nil {
		c.log.Warn().Err(err).Str("property", d.Name).Msg("read_all failed")
		return nil, err
	}

	c.log.Debug().
		Str("property", d.Name).
		Str("action", protocol.ActionReadAll.String()).
		Int("modules", len(values)).
		Msg("transaction complete")
	return values, nil
}

func (c *Controller) readAll(ctx context.Context, header byte, attr protocol.Attributes) ([][]byte, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	defer c.finish()

	if err := c.send([]byte{header, 0x00, 0x00}); err != nil {
		return nil, err
	}

	const op = "read_all"
	head, err := c.receive(op, 1+protocol.IndexSize)
	if err != nil {
		return nil, err
	}
	if head[0] != header {
		return nil, fmt.Errorf("%w: sent 0x%02x, got 0x%02x", ErrHeaderMismatch, header, head[0])
	}

	count := int(binary.LittleEndian.Uint16(head[1:]))
	c.modules = count
	c.metrics.modules(count)
	if count == 0 {
		return nil, ErrNoModules
	}

	values := make([][]byte, count)
	if !attr.Supported() {
		return values, nil
	}

	if !attr.DynamicSize {
		size := int(attr.StaticSize)
		data, err := c.receive(op, count*size)
		if err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = data[i*size : (i+1)*size]
		}
		return values, nil
	}

	for i := range values {
		prefix, err := c.receive(op, protocol.DynamicSizePrefix)
		if err != nil {
			return nil, err
		}
		n := int(binary.LittleEndian.Uint16(prefix))
		if protocol.DynamicSizePrefix+n > protocol.ChainComMaxLen {
			return nil, fmt.Errorf("%w: module %d announced %d bytes", protocol.ErrPayloadSize, i, n)
		}
		values[i], err = c.receive(op, n)
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

// WriteAll broadcasts one value to every module. Modules apply it only
// after the trailing ACK reached them.
func (c *Controller) WriteAll(ctx context.Context, id protocol.PropertyID, value []byte) error {
	d, err := c.registry.Writable(id)
	if err != nil {
		return err
	}
	if err := d.Write.CheckValue(len(value)); err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	header, err := protocol.EncodeHeader(protocol.Header{Property: id, Action: protocol.ActionWriteAll})
	if err != nil {
		return err
	}

	msg := make([]byte, 0, 1+d.Write.WireSize(len(value))+1)
	msg = append(msg, header)
	msg = appendValue(msg, d.Write, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	err = c.writeAll(ctx, msg)
	c.metrics.observe(protocol.ActionWriteAll.String(), err)
	if err != nil {
		c.log.Warn().Err(err).Str("property", d.Name).Msg("write_all failed")
		return err
	}

	c.log.Debug().
		Str("property", d.Name).
		Str("action", protocol.ActionWriteAll.String()).
		Int("bytes", len(value)).
		Msg("transaction complete")
	return nil
}

func (c *Controller) writeAll(ctx context.Context, broadcast []byte) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.finish()

	msg := append(broadcast, protocol.AckByte)
	if err := c.send(msg); err != nil {
		return err
	}

	// The last module relays the broadcast back, followed by the ACK
	reply, err := c.receive("write_all", len(msg))
	if err != nil {
		return err
	}
	if !bytes.Equal(reply[:len(broadcast)], broadcast) {
		return fmt.Errorf("%w: sent % x, got % x", ErrEchoMismatch, broadcast, reply[:len(broadcast)])
	}
	if ack := reply[len(broadcast)]; ack != protocol.AckByte {
		return fmt.Errorf("%w: got 0x%02x", ErrAckMismatch, ack)
	}
	return nil
}

// WriteSequential sends a distinct value to each module. values[i] goes to
// module i; a nil entry leaves that module unchanged. Modules past the end
// of values are not addressed. Values are applied once the modules see the
// chain go idle; WriteSequential returns after that window.
func (c *Controller) WriteSequential(ctx context.Context, id protocol.PropertyID, values [][]byte) error {
	d, err := c.registry.Writable(id)
	if err != nil {
		return err
	}
	header, err := protocol.EncodeHeader(protocol.Header{Property: id, Action: protocol.ActionWriteSequential})
	if err != nil {
		return err
	}
	skip := protocol.MustEncodeHeader(protocol.PropertyNone, protocol.ActionWriteSequential)

	var msg []byte
	addressed := 0
	for i, v := range values {
		if v == nil {
			msg = append(msg, skip)
			continue
		}
		if err := d.Write.CheckValue(len(v)); err != nil {
			return fmt.Errorf("%s module %d: %w", d.Name, i, err)
		}
		msg = append(msg, header)
		msg = appendValue(msg, d.Write, v)
		addressed++
	}
	msg = append(msg, protocol.AckByte)

	c.mu.Lock()
	defer c.mu.Unlock()

	err = c.writeSequential(ctx, msg)
	c.metrics.observe(protocol.ActionWriteSequential.String(), err)
	if err != nil {
		c.log.Warn().Err(err).Str("property", d.Name).Msg("write_sequential failed")
		return err
	}

	c.log.Debug().
		Str("property", d.Name).
		Str("action", protocol.ActionWriteSequential.String()).
		Int("modules", addressed).
		Msg("transaction complete")
	return nil
}

func (c *Controller) writeSequential(ctx context.Context, msg []byte) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.finish()

	if err := c.send(msg); err != nil {
		return err
	}

	// Every module consumed its own segment, only the ACK comes back
	reply, err := c.receive("write_sequential", 1)
	if err != nil {
		return err
	}
	if reply[0] != protocol.AckByte {
		return fmt.Errorf("%w: got 0x%02x", ErrAckMismatch, reply[0])
	}

	// Modules commit when their idle timeout expires
	return sleep(ctx, c.moduleTimeout*6/5)
}

// appendValue appends a value in wire format
func appendValue(msg []byte, attr protocol.Attributes, value []byte) []byte {
	if attr.DynamicSize {
		msg = binary.LittleEndian.AppendUint16(msg, uint16(len(value)))
	}
	return append(msg, value...)
}

// begin waits out the gap to the previous transaction and drops stale input
func (c *Controller) begin(ctx context.Context) error {
	if err := c.enforceCommandGap(ctx); err != nil {
		return err
	}
	if n := c.transport.Drain(); n > 0 {
		c.log.Debug().Int("bytes", n).Msg("discarded stale input")
	}
	return nil
}

func (c *Controller) finish() {
	c.lastCmdTime = time.Now()
}

func (c *Controller) enforceCommandGap(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	elapsed := time.Since(c.lastCmdTime)
	if elapsed < c.triggerDelay {
		return sleep(ctx, c.triggerDelay-elapsed)
	}
	return nil
}

func (c *Controller) send(msg []byte) error {
	if err := c.transport.Write(msg); err != nil {
		return fmt.Errorf("failed to write to chain: %w", err)
	}
	c.metrics.sent(len(msg))
	return nil
}

func (c *Controller) receive(op string, n int) ([]byte, error) {
	data, err := c.transport.ReadFull(n, time.Duration(n)*c.byteTimeout)
	c.metrics.received(len(data))
	if err != nil {
		return nil, &ReplyError{Op: op, Got: len(data), Want: n, Err: err}
	}
	return data, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
