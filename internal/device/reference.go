package device

import (
	"fmt"
	"runtime"
	"sync"
)

// ReferenceDriver is the name of the built-in driver that runs kernels on
// host goroutines. It has the same launch/synchronize contract as hardware
// drivers and is what tests and GPU-less deployments select explicitly.
const ReferenceDriver = "reference"

func init() {
	Register(ReferenceDriver, func() (Accelerator, error) {
		return NewReference(0), nil
	})
}

type hostBuffer struct {
	data []byte
}

func (b *hostBuffer) View() []byte { return b.data }

func (b *hostBuffer) CopyTo(dst []byte) int { return copy(dst, b.data) }

func (b *hostBuffer) Release() { b.data = nil }

// launch tracks one Launch call.
type launch struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	faults []error
}

func (l *launch) fault(err error) {
	l.mu.Lock()
	l.faults = append(l.faults, err)
	l.mu.Unlock()
}

func (l *launch) Wait() error {
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.faults) == 0 {
		return nil
	}
	return l.faults[0]
}

// Reference executes grids on a fixed number of goroutines, each taking a
// band of rows. Concurrent launches are independent.
type Reference struct {
	workers int

	mu      sync.Mutex
	pending map[*launch]struct{}
}

// NewReference creates a reference accelerator. workers <= 0 uses GOMAXPROCS.
func NewReference(workers int) *Reference {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Reference{workers: workers, pending: make(map[*launch]struct{})}
}

func (r *Reference) Name() string {
	return fmt.Sprintf("reference(%d workers)", r.workers)
}

func (r *Reference) Allocate(data []byte) (Buffer, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &hostBuffer{data: buf}, nil
}

func (r *Reference) Launch(grid Grid, kernel KernelFunc) (Fence, error) {
	bands := min(r.workers, grid.Rows)
	rowsPerBand := (grid.Rows + bands - 1) / bands

	l := &launch{}
	// All bands are counted before any goroutine starts, so Wait never
	// observes a zero counter early.
	l.wg.Add((grid.Rows + rowsPerBand - 1) / rowsPerBand)

	r.mu.Lock()
	r.pending[l] = struct{}{}
	r.mu.Unlock()

	for start := 0; start < grid.Rows; start += rowsPerBand {
		end := min(start+rowsPerBand, grid.Rows)
		go r.runBand(l, grid, kernel, start, end)
	}

	go func() {
		l.wg.Wait()
		r.mu.Lock()
		delete(r.pending, l)
		r.mu.Unlock()
	}()

	return l, nil
}

func (r *Reference) runBand(l *launch, grid Grid, kernel KernelFunc, start, end int) {
	defer l.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			l.fault(fmt.Errorf("device: kernel fault in rows [%d,%d): %v", start, end, p))
		}
	}()

	for row := start; row < end; row++ {
		for col := 0; col < grid.Cols; col++ {
			kernel(row, col)
		}
	}
}

func (r *Reference) Synchronize() error {
	r.mu.Lock()
	launches := make([]*launch, 0, len(r.pending))
	for l := range r.pending {
		launches = append(launches, l)
	}
	r.mu.Unlock()

	for _, l := range launches {
		l.wg.Wait()
	}
	return nil
}

func (r *Reference) Close() error {
	return r.Synchronize()
}
