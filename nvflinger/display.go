package nvflinger

// A Layer is one compositing surface of a display. It owns exactly one
// buffer queue.
type Layer struct {
	ID          uint64
	bufferQueue *BufferQueue
}

// NewLayer creates a layer over the queue.
func NewLayer(id uint64, queue *BufferQueue) *Layer {
	return &Layer{ID: id, bufferQueue: queue}
}

// BufferQueue returns the layer's queue.
func (l *Layer) BufferQueue() *BufferQueue {
	return l.bufferQueue
}

// A Display is a named output with an ordered list of layers. Only the
// first layer is composed.
type Display struct {
	ID     uint64
	Name   string
	layers []*Layer
}

// NewDisplay creates a display with no layers.
func NewDisplay(id uint64, name string) *Display {
	return &Display{ID: id, Name: name}
}

// AddLayer appends a layer to the display.
func (d *Display) AddLayer(l *Layer) {
	d.layers = append(d.layers, l)
}

// RemoveLayer detaches the layer with the id. It reports whether one was
// found.
func (d *Display) RemoveLayer(id uint64) bool {
	for i, l := range d.layers {
		if l.ID == id {
			d.layers = append(d.layers[:i], d.layers[i+1:]...)
			return true
		}
	}
	return false
}

// FindLayer returns the layer with the id, or nil.
func (d *Display) FindLayer(id uint64) *Layer {
	for _, l := range d.layers {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// NumLayers returns the number of attached layers.
func (d *Display) NumLayers() int {
	return len(d.layers)
}
