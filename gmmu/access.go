package gmmu

import (
	"encoding/binary"
	"fmt"
)

// ReadBlock copies size bytes starting at gpuAddr into dst, flushing the
// rasterizer caches first so the data is coherent. Unmapped holes read as
// zeros.
func (m *Manager) ReadBlock(gpuAddr uint64, dst []byte) {
	m.accessBlock(gpuAddr, dst, true, true)
}

// ReadBlockUnsafe is ReadBlock without the cache flush. The command pusher
// uses it on command lists, which the GPU never writes.
func (m *Manager) ReadBlockUnsafe(gpuAddr uint64, dst []byte) {
	m.accessBlock(gpuAddr, dst, true, false)
}

// WriteBlock copies src to gpuAddr and invalidates the rasterizer caches
// over the written range.
func (m *Manager) WriteBlock(gpuAddr uint64, src []byte) {
	m.accessBlock(gpuAddr, src, false, true)
}

// WriteBlockUnsafe is WriteBlock without the cache invalidate.
func (m *Manager) WriteBlockUnsafe(gpuAddr uint64, src []byte) {
	m.accessBlock(gpuAddr, src, false, false)
}

// CopyBlock copies size bytes from gpuSrc to gpuDst through host memory.
func (m *Manager) CopyBlock(gpuDst, gpuSrc, size uint64) {
	buf := make([]byte, size)
	m.ReadBlock(gpuSrc, buf)
	m.WriteBlock(gpuDst, buf)
}

func (m *Manager) accessBlock(gpuAddr uint64, buf []byte, read, safe bool) {
	m.mu.RLock()
	rasterizer := m.rasterizer
	ranges := m.submappedLocked(gpuAddr, uint64(len(buf)))
	m.mu.RUnlock()

	for _, r := range ranges {
		piece := buf[r.offset : r.offset+r.size]

		if read {
			if safe && rasterizer != nil {
				rasterizer.FlushRegion(r.cpuAddr, r.size)
			}
			m.host.ReadBlock(r.cpuAddr, piece)
		} else {
			m.host.WriteBlock(r.cpuAddr, piece)
			if safe && rasterizer != nil {
				rasterizer.InvalidateRegion(r.cpuAddr, r.size)
			}
		}
	}
}

type submappedPiece struct {
	offset  uint64 // offset into the caller's buffer
	cpuAddr uint64
	size    uint64
}

func (m *Manager) submappedLocked(gpuAddr, size uint64) []submappedPiece {
	var pieces []submappedPiece

	end := gpuAddr + size
	for _, mp := range m.mappings {
		if mp.gpuAddr+mp.size <= gpuAddr || mp.gpuAddr >= end {
			continue
		}

		start := max64(gpuAddr, mp.gpuAddr)
		stop := min64(end, mp.gpuAddr+mp.size)
		pieces = append(pieces, submappedPiece{
			offset:  start - gpuAddr,
			cpuAddr: mp.cpuAddr + (start - mp.gpuAddr),
			size:    stop - start,
		})
	}

	return pieces
}

// ReadUint32 reads one little-endian word through the active mapping.
func (m *Manager) ReadUint32(gpuAddr uint64) (uint32, error) {
	if _, ok := m.GpuToCpuAddress(gpuAddr); !ok {
		return 0, fmt.Errorf("read from unmapped gpu address %#x", gpuAddr)
	}

	var buf [4]byte
	m.ReadBlock(gpuAddr, buf[:])
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes one little-endian word through the active mapping.
func (m *Manager) WriteUint32(gpuAddr uint64, v uint32) error {
	if _, ok := m.GpuToCpuAddress(gpuAddr); !ok {
		return fmt.Errorf("write to unmapped gpu address %#x", gpuAddr)
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	m.WriteBlock(gpuAddr, buf[:])
	return nil
}

// ReadUint64 reads one little-endian doubleword through the active mapping.
func (m *Manager) ReadUint64(gpuAddr uint64) (uint64, error) {
	if _, ok := m.GpuToCpuAddress(gpuAddr); !ok {
		return 0, fmt.Errorf("read from unmapped gpu address %#x", gpuAddr)
	}

	var buf [8]byte
	m.ReadBlock(gpuAddr, buf[:])
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes one little-endian doubleword through the active
// mapping.
func (m *Manager) WriteUint64(gpuAddr uint64, v uint64) error {
	if _, ok := m.GpuToCpuAddress(gpuAddr); !ok {
		return fmt.Errorf("write to unmapped gpu address %#x", gpuAddr)
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	m.WriteBlock(gpuAddr, buf[:])
	return nil
}
