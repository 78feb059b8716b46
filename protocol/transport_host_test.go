package protocol

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// mockPort feeds queued chunks to Read and records writes
type mockPort struct {
	mu      sync.Mutex
	written bytes.Buffer
	rx      chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newMockPort() *mockPort {
	return &mockPort{
		rx:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (m *mockPort) Read(b []byte) (int, error) {
	select {
	case data := <-m.rx:
		return copy(b, data), nil
	case <-m.closed:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (m *mockPort) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(b)
}

func (m *mockPort) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written.Bytes()...)
}

func TestHostTransportWrite(t *testing.T) {
	port := newMockPort()
	tr := NewHostTransport(port)
	defer tr.Close()

	if err := tr.Write([]byte{0x46, 0x00, 0x00}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !bytes.Equal(port.Written(), []byte{0x46, 0x00, 0x00}) {
		t.Errorf("Expected bytes on the port, got %v", port.Written())
	}
}

func TestHostTransportReadFullAcrossChunks(t *testing.T) {
	port := newMockPort()
	tr := NewHostTransport(port)
	defer tr.Close()

	port.rx <- []byte{1, 2}
	port.rx <- []byte{3}
	port.rx <- []byte{4, 5}

	got, err := tr.ReadFull(5, time.Second)
	if err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("Expected [1 2 3 4 5], got %v", got)
	}
}

func TestHostTransportReadFullLeavesRemainder(t *testing.T) {
	port := newMockPort()
	tr := NewHostTransport(port)
	defer tr.Close()

	port.rx <- []byte{1, 2, 3, 4}

	first, err := tr.ReadFull(3, time.Second)
	if err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	second, err := tr.ReadFull(1, time.Second)
	if err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if !bytes.Equal(first, []byte{1, 2, 3}) || !bytes.Equal(second, []byte{4}) {
		t.Errorf("Expected [1 2 3] then [4], got %v then %v", first, second)
	}
}

func TestHostTransportReadFullTimeout(t *testing.T) {
	port := newMockPort()
	tr := NewHostTransport(port)
	defer tr.Close()

	port.rx <- []byte{9}

	got, err := tr.ReadFull(3, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if !bytes.Equal(got, []byte{9}) {
		t.Errorf("Expected partial reply [9], got %v", got)
	}
}

func TestHostTransportDrain(t *testing.T) {
	port := newMockPort()
	tr := NewHostTransport(port)
	defer tr.Close()

	port.rx <- []byte{7, 7, 7}
	time.Sleep(30 * time.Millisecond)

	if n := tr.Drain(); n != 3 {
		t.Errorf("Expected 3 bytes drained, got %d", n)
	}
	if got, err := tr.ReadFull(1, 20*time.Millisecond); !errors.Is(err, ErrTimeout) || len(got) != 0 {
		t.Errorf("Expected nothing left after Drain, got %v (%v)", got, err)
	}
}

func TestHostTransportClose(t *testing.T) {
	port := newMockPort()
	tr := NewHostTransport(port)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Write([]byte{0}); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed, got %v", err)
	}
	if _, err := tr.ReadFull(1, time.Second); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed from ReadFull, got %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}
