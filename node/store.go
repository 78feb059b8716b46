package node

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"flapchain/protocol"

	"github.com/sigurn/crc16"
	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

const (
	propsDir   = "/props"
	tempSuffix = ".tmp"
	crcSize    = 2
)

var (
	ErrRecordNotFound = errors.New("property record not found")
	ErrRecordCorrupt  = errors.New("property record corrupt")
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Store persists property values on a littlefs filesystem, one file per
// property. Each record carries a CRC-16 trailer.
type Store struct {
	fs       *littlefs.LFS
	blockDev tinyfs.BlockDevice
	mounted  bool
}

// OpenStore mounts the filesystem on blockDev. If format is true and mount
// fails, the device is formatted first.
func OpenStore(blockDev tinyfs.BlockDevice, format bool) (*Store, error) {
	lfs := littlefs.New(blockDev)
	lfs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 128,
	})

	if err := lfs.Mount(); err != nil {
		if !format {
			return nil, err
		}
		if err := lfs.Format(); err != nil {
			return nil, err
		}
		if err := lfs.Mount(); err != nil {
			return nil, err
		}
	}

	s := &Store{
		fs:       lfs,
		blockDev: blockDev,
		mounted:  true,
	}
	s.cleanup()
	return s, nil
}

// Close unmounts the filesystem
func (s *Store) Close() error {
	if s.mounted {
		s.mounted = false
		return s.fs.Unmount()
	}
	return nil
}

// cleanup removes temporary files left over from interrupted writes
func (s *Store) cleanup() {
	f, err := s.fs.Open(propsDir)
	if err != nil {
		return
	}
	defer f.Close()
	if !f.IsDir() {
		return
	}
	entries, err := f.Readdir(-1)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), tempSuffix) {
			s.fs.Remove(path.Join(propsDir, entry.Name()))
		}
	}
}

func (s *Store) ensureDir() error {
	if err := s.fs.Mkdir(propsDir, 0755); err != nil && !isExist(err) {
		return err
	}
	return nil
}

// isExist checks if an error is "already exists".
// LittleFS errors don't always match os.IsExist, so we check the message too.
func isExist(err error) bool {
	if os.IsExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

func recordPath(name string) string {
	return path.Join(propsDir, name)
}

// Save writes a property value atomically
func (s *Store) Save(name string, value []byte) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	record := make([]byte, len(value)+crcSize)
	copy(record, value)
	binary.LittleEndian.PutUint16(record[len(value):], crc16.Checksum(value, crcTable))

	return s.atomicWrite(recordPath(name), record)
}

// atomicWrite writes to a temp file and renames it over the target
func (s *Store) atomicWrite(target string, data []byte) error {
	tmp := target + tempSuffix

	// Remove temp file if it exists (from interrupted previous write)
	s.fs.Remove(tmp)

	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return err
	}

	// LittleFS rename doesn't replace an existing file
	s.fs.Remove(target)
	if err := s.fs.Rename(tmp, target); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return nil
}

// Load reads a property value and verifies its checksum
func (s *Store) Load(name string) ([]byte, error) {
	f, err := s.fs.Open(recordPath(name))
	if err != nil {
		if os.IsNotExist(err) || strings.Contains(err.Error(), "No directory entry") {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, protocol.ChainComMaxLen+crcSize)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	record := buf[:n]
	if len(record) < crcSize {
		return nil, ErrRecordCorrupt
	}

	value := record[:len(record)-crcSize]
	if binary.LittleEndian.Uint16(record[len(value):]) != crc16.Checksum(value, crcTable) {
		return nil, ErrRecordCorrupt
	}
	return value, nil
}

// Delete removes a saved property
func (s *Store) Delete(name string) error {
	return s.fs.Remove(recordPath(name))
}
