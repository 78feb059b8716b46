package chain

import (
	"io"
	"sync"
	"time"

	"flapchain/protocol"
)

// Port connects a controller to a simulated chain in real time. It
// satisfies the same interface as a serial port, so the controller code
// runs unchanged against it.
type Port struct {
	mu          sync.Mutex
	chain       *Chain
	readTimeout time.Duration
	dataReady   chan struct{}
	stopChan    chan struct{}
	doneChan    chan struct{}
	closed      bool
}

// NewPort starts driving chain's clock from wall time. Read blocks for at
// most readTimeout when no data is available, like a serial read timeout.
func NewPort(chain *Chain, readTimeout time.Duration) *Port {
	p := &Port{
		chain:       chain,
		readTimeout: readTimeout,
		dataReady:   make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	go p.clockLoop()
	return p
}

// Do runs fn with exclusive access to the chain
func (p *Port) Do(fn func(c *Chain)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.chain)
}

// clockLoop advances the virtual clock with wall time so idle timeouts fire
func (p *Port) clockLoop() {
	defer close(p.doneChan)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-p.stopChan:
			return
		case now := <-ticker.C:
			p.mu.Lock()
			p.chain.Advance(now.Sub(last))
			p.mu.Unlock()
			last = now
		}
	}
}

// Write injects bytes into the first module
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, protocol.ErrTransportClosed
	}
	p.chain.Inject(b)
	if p.chain.Pending() > 0 {
		select {
		case p.dataReady <- struct{}{}:
		default:
		}
	}
	return len(b), nil
}

// Read returns bytes that came back from the last module
func (p *Port) Read(b []byte) (int, error) {
	deadline := time.NewTimer(p.readTimeout)
	defer deadline.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, io.EOF
		}
		if p.chain.Pending() > 0 {
			data := p.chain.Drain()
			n := copy(b, data)
			if n < len(data) {
				// Put back what did not fit
				p.chain.rx = data[n:]
			}
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.dataReady:
		case <-deadline.C:
			return 0, nil
		case <-p.stopChan:
			return 0, io.EOF
		}
	}
}

// Flush drops bytes not yet read
func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain.Drain()
	return nil
}

// Close stops the clock. Pending reads return io.EOF.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopChan)
	<-p.doneChan
	return nil
}
