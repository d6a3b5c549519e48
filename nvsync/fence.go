package nvsync

// A Fence names a syncpoint value to wait for or to signal. An ID of -1
// (NoSyncpoint when viewed unsigned) marks an unused fence.
type Fence struct {
	ID    int32
	Value uint32
}

// A MultiFence carries up to four fences attached to one buffer.
type MultiFence struct {
	NumFences uint32
	Fences    [4]Fence
}
