// Package sng reads SNG song packages, the binary container format music
// games use to bundle chart files, audio stems, images, and metadata in one
// file. Member data is XOR-masked with a lookup table derived from a 16-byte
// mask in the header.
//
// The reader works over an in-memory byte slice so extracted members (for
// example notes.mid or song.ini) can be handed straight to the chart parser
// without touching disk.
package sng

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// fileIdentifier is the magic at the start of every SNG package.
const fileIdentifier = "SNGPKG"

// header is the fixed-size package header.
type header struct {
	Identifier [6]byte
	Version    uint32
	XorMask    [16]byte
}

// Entry describes one member file in the package index.
type Entry struct {
	Name   string
	Size   uint64
	Offset uint64
}

// Package is a parsed SNG container.
type Package struct {
	Version  uint32
	Metadata map[string]string
	Entries  []Entry

	data []byte
	mask [16]byte
}

// Read parses an SNG package from memory. The slice is retained; member
// reads decode lazily from it.
func Read(data []byte) (*Package, error) {
	r := bytes.NewReader(data)

	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading sng header: %w", err)
	}
	if string(hdr.Identifier[:]) != fileIdentifier {
		return nil, fmt.Errorf("not an sng package: bad identifier %q", hdr.Identifier)
	}

	pkg := &Package{
		Version:  hdr.Version,
		Metadata: make(map[string]string),
		data:     data,
		mask:     hdr.XorMask,
	}

	if err := pkg.readMetadata(r); err != nil {
		return nil, fmt.Errorf("reading sng metadata: %w", err)
	}
	if err := pkg.readIndex(r); err != nil {
		return nil, fmt.Errorf("reading sng file index: %w", err)
	}
	return pkg, nil
}

func (p *Package) readMetadata(r *bytes.Reader) error {
	var sectionLen, count uint64
	if err := binary.Read(r, binary.LittleEndian, &sectionLen); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	for i := uint64(0); i < count; i++ {
		key, err := readString32(r, 1024)
		if err != nil {
			return err
		}
		value, err := readString32(r, 10240)
		if err != nil {
			return err
		}
		p.Metadata[key] = value
	}
	return nil
}

func (p *Package) readIndex(r *bytes.Reader) error {
	var sectionLen, count uint64
	if err := binary.Read(r, binary.LittleEndian, &sectionLen); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	for i := uint64(0); i < count; i++ {
		var nameLen uint8
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return err
		}
		var size, offset uint64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return err
		}
		p.Entries = append(p.Entries, Entry{Name: string(name), Size: size, Offset: offset})
	}
	return nil
}

func readString32(r *bytes.Reader, limit int32) (string, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n < 0 || n > limit {
		return "", fmt.Errorf("invalid string length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// List returns the member file names in index order.
func (p *Package) List() []string {
	names := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		names[i] = e.Name
	}
	return names
}

// Open returns the unmasked contents of a member file.
func (p *Package) Open(name string) ([]byte, error) {
	for _, e := range p.Entries {
		if e.Name != name {
			continue
		}
		end := e.Offset + e.Size
		if e.Offset > uint64(len(p.data)) || end > uint64(len(p.data)) {
			return nil, fmt.Errorf("sng member %s extends past end of package", name)
		}
		return p.unmask(p.data[e.Offset:end]), nil
	}
	return nil, fmt.Errorf("sng member not found: %s", name)
}

// unmask reverses the per-position XOR masking. The 256-entry lookup table
// folds the position byte into the 16-byte header mask.
func (p *Package) unmask(masked []byte) []byte {
	var lookup [256]byte
	for i := 0; i < 256; i++ {
		lookup[i] = byte(i) ^ p.mask[i&0x0F]
	}
	out := make([]byte, len(masked))
	for i, b := range masked {
		out[i] = b ^ lookup[i&0xFF]
	}
	return out
}
