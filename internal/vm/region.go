package vm

import (
	"errors"
	"fmt"
)

// Perm is the access permission of a memory region. Read and write are
// independently settable.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
)

// RegionSpan is the amount of virtual address space reserved per region slot.
// No region may be larger than this; it guarantees regions can never overlap.
const RegionSpan = 0x10000

var (
	ErrOutOfBounds = errors.New("memory access outside declared regions")
	ErrPermission  = errors.New("memory access permission denied")
)

// Region is one contiguous block of host memory a program may access, mapped
// at a fixed virtual base derived from its slot number.
type Region struct {
	base uint64
	buf  []byte
	perm Perm
}

// RegionTable holds the ordered set of regions for one execution. Slot numbers
// are assigned in registration order and are part of the calling convention:
// programs receive region addresses as numbered slots, so registration order
// must be stable.
type RegionTable struct {
	regions []Region
}

func NewRegionTable() *RegionTable {
	return &RegionTable{}
}

// RegionBase returns the virtual base address a region gets when registered
// into the given slot. Bases are deterministic so callers can compute them
// before registration.
func RegionBase(slot int) uint64 {
	return uint64(slot+1) * RegionSpan
}

// Add registers buf as the next region slot and returns its slot number.
// Buffers larger than RegionSpan cannot be mapped.
func (t *RegionTable) Add(buf []byte, perm Perm) (int, error) {
	if len(buf) > RegionSpan {
		return 0, fmt.Errorf("region of %d bytes exceeds maximum of %d", len(buf), RegionSpan)
	}
	slot := len(t.regions)
	t.regions = append(t.regions, Region{
		base: RegionBase(slot),
		buf:  buf,
		perm: perm,
	})
	return slot, nil
}

// Len returns the number of registered regions.
func (t *RegionTable) Len() int {
	return len(t.regions)
}

// Base returns the virtual base address of the given slot.
func (t *RegionTable) Base(slot int) uint64 {
	return t.regions[slot].base
}

// Bytes returns the backing buffer of the given slot.
func (t *RegionTable) Bytes(slot int) []byte {
	return t.regions[slot].buf
}

// translate maps a [addr, addr+size) virtual range to the backing host bytes,
// enforcing bounds and permission. Every load and store goes through here;
// anything outside the declared set is unreachable. addr is guest-controlled,
// so the bounds comparisons are by subtraction only: an additive form like
// addr+size wraps for addresses near 2^64 and would pass the check.
func (t *RegionTable) translate(addr uint64, size int, write bool) ([]byte, error) {
	n := uint64(size)
	for i := range t.regions {
		r := &t.regions[i]
		if addr < r.base {
			continue
		}
		off := addr - r.base
		if uint64(len(r.buf)) < n || off > uint64(len(r.buf))-n {
			continue
		}
		if write && r.perm&PermWrite == 0 {
			return nil, fmt.Errorf("%w: write to read-only region %d at 0x%x", ErrPermission, i, addr)
		}
		if !write && r.perm&PermRead == 0 {
			return nil, fmt.Errorf("%w: read from region %d at 0x%x", ErrPermission, i, addr)
		}
		return r.buf[off : off+n], nil
	}
	return nil, fmt.Errorf("%w: %d bytes at 0x%x", ErrOutOfBounds, size, addr)
}
