package capture

import (
	"sync"
)

// Devices grants exclusive ownership of capture devices. One registry is
// shared by every source in a process; acquiring a held device fails
// instead of waiting.
type Devices struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewDevices creates an empty registry.
func NewDevices() *Devices {
	return &Devices{held: make(map[string]struct{})}
}

// Acquire claims target or returns a KindDeviceBusy error.
func (d *Devices) Acquire(target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.held[target]; ok {
		return &Error{Kind: KindDeviceBusy, Target: target}
	}
	d.held[target] = struct{}{}
	return nil
}

// Release frees target. Releasing a free device is a no-op.
func (d *Devices) Release(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.held, target)
}

// Held reports whether target is currently claimed.
func (d *Devices) Held(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.held[target]
	return ok
}
