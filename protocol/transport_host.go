package protocol

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// HostTransport moves raw chain bytes between the controller and the
// first module. The chain has no framing, so the transport only buffers
// received bytes and lets the caller collect exactly the number it expects.
type HostTransport struct {
	// Serial I/O
	port io.ReadWriteCloser

	// Received bytes waiting for ReadFull
	inputBuffer *FifoBuffer
	dataReady   chan struct{}
	overflow    uint32 // atomic count of bytes dropped on a full buffer

	// Mutex for thread-safe operations
	writeMutex sync.Mutex
	readMutex  sync.Mutex

	// Stop channel for graceful shutdown
	stopChan chan struct{}
	doneChan chan struct{}
	closed   uint32 // atomic bool
}

// inputBufferSize holds the longest read_all reply the controller is
// expected to collect in one go
const inputBufferSize = 16 * ChainComMaxLen

// NewHostTransport creates a new host-side transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:        port,
		inputBuffer: NewFifoBuffer(inputBufferSize),
		dataReady:   make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}

	// Start background reader
	go t.readLoop()

	return t
}

// Write sends msg to the chain
func (t *HostTransport) Write(msg []byte) error {
	if atomic.LoadUint32(&t.closed) != 0 {
		return ErrTransportClosed
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// ReadFull collects exactly n received bytes. If the chain stays silent
// until timeout, the bytes received so far are returned with ErrTimeout.
func (t *HostTransport) ReadFull(n int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, n)
	if n == 0 {
		return out, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		t.readMutex.Lock()
		if avail := t.inputBuffer.Available(); avail > 0 {
			chunk := make([]byte, min(avail, n-len(out)))
			t.inputBuffer.Read(chunk)
			out = append(out, chunk...)
		}
		t.readMutex.Unlock()

		if len(out) == n {
			return out, nil
		}

		select {
		case <-t.dataReady:
		case <-deadline.C:
			return out, fmt.Errorf("%w: got %d of %d bytes", ErrTimeout, len(out), n)
		case <-t.stopChan:
			return out, ErrTransportClosed
		}
	}
}

// Drain discards every byte received so far and returns how many there were
func (t *HostTransport) Drain() int {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	n := t.inputBuffer.Available()
	t.inputBuffer.Reset()
	select {
	case <-t.dataReady:
	default:
	}
	return n
}

// Overflow returns the number of received bytes dropped because nobody
// collected them in time
func (t *HostTransport) Overflow() uint32 {
	return atomic.LoadUint32(&t.overflow)
}

// readLoop continuously reads from the port into the input buffer
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, ChainComMaxLen)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.readMutex.Lock()
			written := t.inputBuffer.Write(buffer[:n])
			t.readMutex.Unlock()
			if written < n {
				atomic.AddUint32(&t.overflow, uint32(n-written))
			}

			select {
			case t.dataReady <- struct{}{}:
			default:
			}
		}

		if err != nil {
			if atomic.LoadUint32(&t.closed) != 0 {
				return
			}
			// Serial drivers report an idle read timeout as EOF
			if err == io.EOF {
				time.Sleep(time.Millisecond)
			} else {
				time.Sleep(10 * time.Millisecond)
			}
		}
	}
}

// Close stops the transport and closes the port
func (t *HostTransport) Close() error {
	if !atomic.CompareAndSwapUint32(&t.closed, 0, 1) {
		return nil
	}
	close(t.stopChan)

	var err error
	if t.port != nil {
		err = t.port.Close()
	}
	<-t.doneChan // Wait for read loop to finish
	return err
}
