// Package device abstracts compute accelerators used by the GPU backend.
//
// Drivers register themselves by name. A worker opens exactly one Context at
// startup and closes it on shutdown; a closed Context rejects further work.
// There is no automatic fallback between drivers.
package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnavailable is returned when no registered driver matches or the
	// driver finds no compatible hardware.
	ErrUnavailable = errors.New("device: no compatible accelerator")

	// ErrContextClosed is returned by operations on a closed Context.
	ErrContextClosed = errors.New("device: context closed")
)

// Grid is the launch shape: one kernel invocation per (row, col).
type Grid struct {
	Rows int
	Cols int
}

// KernelFunc is executed once per grid cell.
type KernelFunc func(row, col int)

// Buffer is device memory holding a byte array.
type Buffer interface {
	// View exposes the buffer to kernels running on the device.
	View() []byte
	// CopyTo copies device memory back to host memory.
	CopyTo(dst []byte) int
	Release()
}

// Fence completes when one launched kernel has finished. Wait reports the
// faults of that launch only and may be called any number of times.
type Fence interface {
	Wait() error
}

// Accelerator is one opened compute device. Launch is safe to call from
// several goroutines; each caller waits on its own Fence.
type Accelerator interface {
	Name() string
	// Allocate copies host data into a new device buffer.
	Allocate(data []byte) (Buffer, error)
	// Launch enqueues a kernel; it may return before the kernel completes.
	Launch(grid Grid, kernel KernelFunc) (Fence, error)
	// Synchronize blocks until every kernel launched so far has finished.
	// Kernel faults are reported by the launch's Fence, not here.
	Synchronize() error
	Close() error
}

// Driver opens accelerators.
type Driver func() (Accelerator, error)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Driver)
)

// Register makes a driver available under name, replacing any previous one.
func Register(name string, driver Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	drivers[name] = driver
}

// Unregister removes a driver. Intended for tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(drivers, name)
}

// Drivers lists registered driver names in sorted order.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Context is the scoped handle a worker holds on its accelerator.
type Context struct {
	mu     sync.Mutex
	acc    Accelerator
	closed bool
}

// Open acquires an accelerator from the named driver.
func Open(name string) (*Context, error) {
	registryMu.RLock()
	driver, ok := drivers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: driver %q not registered (available: %v)", ErrUnavailable, name, Drivers())
	}

	acc, err := driver()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: driver %q returned no accelerator", ErrUnavailable, name)
	}

	return &Context{acc: acc}, nil
}

// Name returns the accelerator name.
func (c *Context) Name() string {
	return c.acc.Name()
}

func (c *Context) accelerator() (Accelerator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	return c.acc, nil
}

// Allocate copies data into device memory.
func (c *Context) Allocate(data []byte) (Buffer, error) {
	acc, err := c.accelerator()
	if err != nil {
		return nil, err
	}
	return acc.Allocate(data)
}

// Launch enqueues kernel over grid and returns the fence to wait on.
func (c *Context) Launch(grid Grid, kernel KernelFunc) (Fence, error) {
	if grid.Rows <= 0 || grid.Cols <= 0 {
		return nil, fmt.Errorf("device: empty grid %dx%d", grid.Rows, grid.Cols)
	}
	acc, err := c.accelerator()
	if err != nil {
		return nil, err
	}
	return acc.Launch(grid, kernel)
}

// Synchronize waits for launched kernels.
func (c *Context) Synchronize() error {
	acc, err := c.accelerator()
	if err != nil {
		return err
	}
	return acc.Synchronize()
}

// Close releases the accelerator. Calling Close twice is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.acc.Close()
}
