package nvdrv

import (
	"encoding/binary"
	"log"
	"sync"
)

// A Device is one named driver node. The three ioctl entry points differ
// only in how inline buffers are attached: Ioctl2 carries an extra inline
// input, Ioctl3 an extra inline output.
type Device interface {
	Name() string

	Ioctl1(cmd Command, input, output []byte) Result
	Ioctl2(cmd Command, input, inlineInput, output []byte) Result
	Ioctl3(cmd Command, input, output, inlineOutput []byte) Result
}

// Driver owns the device nodes and the open file descriptors.
type Driver struct {
	mu      sync.Mutex
	devices map[string]Device
	open    map[uint32]Device
	nextFD  uint32
}

// NewDriver creates a driver with no registered devices.
func NewDriver() *Driver {
	return &Driver{
		devices: make(map[string]Device),
		open:    make(map[uint32]Device),
		nextFD:  1,
	}
}

// Register installs a device node under its name.
func (d *Driver) Register(dev Device) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.devices[dev.Name()] = dev
}

// GetDevice returns the registered node with the name, or nil.
func (d *Driver) GetDevice(name string) Device {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.devices[name]
}

// Open returns a fresh descriptor on the named node.
func (d *Driver) Open(name string) (uint32, Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dev, ok := d.devices[name]
	if !ok {
		log.Printf("error: open of unknown device %q", name)
		return 0, ResultFileOperationFailed
	}

	fd := d.nextFD
	d.nextFD++
	d.open[fd] = dev

	return fd, ResultSuccess
}

// Close releases a descriptor.
func (d *Driver) Close(fd uint32) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.open[fd]; !ok {
		return ResultFileOperationFailed
	}
	delete(d.open, fd)

	return ResultSuccess
}

func (d *Driver) device(fd uint32) Device {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.open[fd]
}

// Ioctl1 dispatches a plain ioctl on an open descriptor.
func (d *Driver) Ioctl1(fd uint32, cmd Command, input, output []byte) Result {
	dev := d.device(fd)
	if dev == nil {
		return ResultFileOperationFailed
	}
	return dev.Ioctl1(cmd, input, output)
}

// Ioctl2 dispatches an ioctl with an inline input buffer.
func (d *Driver) Ioctl2(fd uint32, cmd Command, input, inlineInput, output []byte) Result {
	dev := d.device(fd)
	if dev == nil {
		return ResultFileOperationFailed
	}
	return dev.Ioctl2(cmd, input, inlineInput, output)
}

// Ioctl3 dispatches an ioctl with an inline output buffer.
func (d *Driver) Ioctl3(fd uint32, cmd Command, input, output, inlineOutput []byte) Result {
	dev := d.device(fd)
	if dev == nil {
		return ResultFileOperationFailed
	}
	return dev.Ioctl3(cmd, input, output, inlineOutput)
}

// Parameter structs are little-endian byte images with fixed field
// offsets. The accessors below keep the layouts bit-exact without any
// per-struct marshalling code.

func get32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func put32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

func get64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}

func put64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:], v)
}
