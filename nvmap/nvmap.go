// Package nvmap implements the handle-keyed table of guest-allocated buffer
// objects shared between the driver devices, the display path, and the GPU.
package nvmap

import (
	"errors"
	"sync"
)

// Errors returned by the container. The ioctl layer maps each to its wire
// result code.
var (
	ErrZeroSize       = errors.New("nvmap: zero size")
	ErrZeroHandle     = errors.New("nvmap: zero handle")
	ErrBadAlignment   = errors.New("nvmap: alignment is not a power of two")
	ErrNotFound       = errors.New("nvmap: handle not found")
	ErrAlreadyAlloced = errors.New("nvmap: object already allocated")
	ErrNotAllocated   = errors.New("nvmap: object not allocated")
)

// Status is the lifecycle state of an object.
type Status uint32

// Object lifecycle states.
const (
	StatusCreated Status = iota
	StatusAllocated
)

const minAlign = 0x1000

// An Object is one guest buffer. Multiple handles may alias the same id, so
// objects carry an explicit refcount.
type Object struct {
	ID         uint32
	Size       uint64
	Flags      uint32
	Align      uint32
	Kind       uint8
	CPUAddr    uint64
	Status     Status
	Refcount   int
	DMAMapAddr uint64
}

// Container is the handle table. Handle 0 is a reserved placeholder and is
// never returned.
type Container struct {
	mu         sync.Mutex
	handles    map[uint32]*Object
	nextHandle uint32
}

// NewContainer creates an empty Container.
func NewContainer() *Container {
	return &Container{
		handles:    make(map[uint32]*Object),
		nextHandle: 1,
	}
}

// Create allocates a fresh handle for an object of the given size.
func (c *Container) Create(size uint64) (uint32, error) {
	if size == 0 {
		return 0, ErrZeroSize
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	handle := c.nextHandle
	c.nextHandle++

	c.handles[handle] = &Object{
		ID:       handle,
		Size:     size,
		Status:   StatusCreated,
		Refcount: 1,
	}

	return handle, nil
}

// Alloc transitions an object from Created to Allocated and records its
// backing CPU address. The alignment is rounded up to 4 KiB.
func (c *Container) Alloc(handle uint32, cpuAddr uint64, align, flags uint32, kind uint8) error {
	if handle == 0 {
		return ErrZeroHandle
	}
	if align&(align-1) != 0 {
		return ErrBadAlignment
	}
	if align < minAlign {
		align = minAlign
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.handles[handle]
	if !ok {
		return ErrNotFound
	}
	if obj.Status == StatusAllocated {
		return ErrAlreadyAlloced
	}

	obj.Status = StatusAllocated
	obj.CPUAddr = cpuAddr
	obj.Align = align
	obj.Flags = flags
	obj.Kind = kind

	return nil
}

// FromID returns the handle of an existing object id and takes a reference
// on it.
func (c *Container) FromID(id uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for handle, obj := range c.handles {
		if obj.ID == id {
			obj.Refcount++
			return handle, nil
		}
	}

	return 0, ErrNotFound
}

// Free drops a reference. When the refcount reaches zero the object is
// removed and its backing address and size are returned so the caller can
// release the underlying memory. The bool result reports whether the object
// was actually freed.
func (c *Container) Free(handle uint32) (cpuAddr uint64, size uint64, freed bool, err error) {
	if handle == 0 {
		return 0, 0, false, ErrZeroHandle
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.handles[handle]
	if !ok {
		return 0, 0, false, ErrNotFound
	}

	obj.Refcount--
	if obj.Refcount > 0 {
		return 0, 0, false, nil
	}

	delete(c.handles, handle)
	return obj.CPUAddr, obj.Size, true, nil
}

// GetObject returns the object behind a handle.
func (c *Container) GetObject(handle uint32) (*Object, error) {
	if handle == 0 {
		return nil, ErrZeroHandle
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.handles[handle]
	if !ok {
		return nil, ErrNotFound
	}

	return obj, nil
}

// ParamKind selects an attribute for Param.
type ParamKind uint32

// Attributes readable through Param.
const (
	ParamSize     ParamKind = 1
	ParamAlign    ParamKind = 2
	ParamBase     ParamKind = 3
	ParamHeap     ParamKind = 4
	ParamKindAttr ParamKind = 5
	ParamCompr    ParamKind = 6
)

// heapMask is reported for allocated carveout objects.
const heapMask = 0x40000000

// Param reads one attribute of an object.
func (c *Container) Param(handle uint32, kind ParamKind) (uint32, error) {
	obj, err := c.GetObject(handle)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case ParamSize:
		return uint32(obj.Size), nil
	case ParamAlign:
		return obj.Align, nil
	case ParamBase:
		return 0, ErrNotAllocated
	case ParamHeap:
		if obj.Status != StatusAllocated {
			return 0, ErrNotAllocated
		}
		return heapMask, nil
	case ParamKindAttr:
		return uint32(obj.Kind), nil
	case ParamCompr:
		return 0, nil
	}

	return 0, ErrNotFound
}

// GetID returns the object id behind a handle.
func (c *Container) GetID(handle uint32) (uint32, error) {
	obj, err := c.GetObject(handle)
	if err != nil {
		return 0, err
	}

	return obj.ID, nil
}
