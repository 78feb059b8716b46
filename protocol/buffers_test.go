package protocol

import "testing"

func TestScratch(t *testing.T) {
	scratch := NewScratch()

	scratch.Output([]byte{1, 2, 3})
	if scratch.CurPosition() != 3 {
		t.Errorf("Expected position 3, got %d", scratch.CurPosition())
	}

	if !scratch.Append(4) {
		t.Error("Append failed on a non-full buffer")
	}

	result := scratch.Result()
	if len(result) != 4 || result[3] != 4 {
		t.Errorf("Expected [1 2 3 4], got %v", result)
	}

	if scratch.At(10) != 0 {
		t.Errorf("Expected 0 beyond written data, got %d", scratch.At(10))
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("Expected position 0 after reset, got %d", scratch.CurPosition())
	}
}

func TestScratchCapacity(t *testing.T) {
	scratch := NewScratch()

	n := scratch.Output(make([]byte, ChainComMaxLen+10))
	if n != ChainComMaxLen {
		t.Errorf("Expected %d bytes copied, got %d", ChainComMaxLen, n)
	}
	if scratch.Append(1) {
		t.Error("Append should fail on a full buffer")
	}
	if len(scratch.Free()) != 0 {
		t.Errorf("Expected no free space, got %d", len(scratch.Free()))
	}
}

func TestScratchAdvance(t *testing.T) {
	scratch := NewScratch()

	n := copy(scratch.Free(), []byte{9, 8, 7})
	scratch.Advance(n)

	if scratch.CurPosition() != 3 || scratch.At(0) != 9 || scratch.At(2) != 7 {
		t.Errorf("Unexpected scratch contents %v", scratch.Result())
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)

	if !fifo.IsEmpty() {
		t.Error("New FIFO should be empty")
	}

	written := fifo.Write([]byte{1, 2, 3, 4, 5})
	if written != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", written)
	}

	if fifo.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", fifo.Available())
	}

	readBuf := make([]byte, 3)
	read := fifo.Read(readBuf)
	if read != 3 {
		t.Errorf("Expected to read 3 bytes, read %d", read)
	}
	if readBuf[0] != 1 || readBuf[1] != 2 || readBuf[2] != 3 {
		t.Errorf("Read incorrect data: %v", readBuf)
	}

	if fifo.Available() != 2 || fifo.Free() != 8 {
		t.Errorf("Expected 2 available and 8 free, got %d and %d", fifo.Available(), fifo.Free())
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	readBuf := make([]byte, 3)
	fifo.Read(readBuf)

	written := fifo.Write([]byte{5, 6, 7})
	if written != 3 {
		t.Errorf("Expected to write 3 bytes after wrap, wrote %d", written)
	}

	out := make([]byte, 4)
	if n := fifo.Read(out); n != 4 {
		t.Fatalf("Expected to read 4 bytes, read %d", n)
	}
	expected := []byte{4, 5, 6, 7}
	for i, b := range expected {
		if out[i] != b {
			t.Errorf("Byte %d: expected %d, got %d", i, b, out[i])
		}
	}
}

func TestFifoBufferFull(t *testing.T) {
	fifo := NewFifoBuffer(4)

	written := fifo.Write([]byte{1, 2, 3, 4, 5})
	if written != 4 {
		t.Errorf("Expected to write 4 bytes, wrote %d", written)
	}
	if fifo.Free() != 0 {
		t.Errorf("Expected 0 bytes free, got %d", fifo.Free())
	}

	fifo.Reset()
	if !fifo.IsEmpty() {
		t.Error("FIFO should be empty after reset")
	}
}
