// Package loader implements the weight-loading collaborator: a write-by-address
// protocol that populates the weight and affine-parameter banks before
// inference starts. The datapath core only consumes the populated storage; it
// never observes a partial update because the driver gates input acceptance on
// Done. Protocol faults are reported through the error flag, never raised.
package loader

import "fmt"

// Bank is one registered parameter segment of the address space, with a
// residency record of how much of it has been written.
type Bank struct {
	Name string
	Base int64

	dest    []int32
	written map[int]bool
	writes  int64
}

// Size returns the bank length in words.
func (b *Bank) Size() int64 {
	return int64(len(b.dest))
}

// Writes returns the total write count into this bank, rewrites included.
func (b *Bank) Writes() int64 {
	return b.writes
}

// Coverage returns the number of distinct words written at least once.
func (b *Bank) Coverage() int64 {
	return int64(len(b.written))
}

// Complete reports whether every word of the bank has been written.
func (b *Bank) Complete() bool {
	return len(b.written) == len(b.dest)
}

// Loader owns the segmented address space and the load_done/load_error
// status flags of the write protocol.
type Loader struct {
	banks  []*Bank
	byName map[string]*Bank
	next   int64

	started bool
	done    bool
	err     error
}

// NewLoader creates an empty loader with no registered banks.
func NewLoader() *Loader {
	return &Loader{byName: make(map[string]*Bank)}
}

// Register appends a parameter bank to the address space and returns its base
// address. Banks are laid out contiguously in registration order. Registration
// happens at construction time, before the protocol starts.
func (l *Loader) Register(name string, dest []int32) int64 {
	if _, ok := l.byName[name]; ok {
		panic(fmt.Errorf("loader: bank %s is already registered", name))
	}
	if len(dest) == 0 {
		panic(fmt.Errorf("loader: bank %s is empty", name))
	}
	bank := &Bank{
		Name:    name,
		Base:    l.next,
		dest:    dest,
		written: make(map[int]bool),
	}
	l.banks = append(l.banks, bank)
	l.byName[name] = bank
	l.next += int64(len(dest))
	return bank.Base
}

// Bank looks up a registered bank by name.
func (l *Loader) Bank(name string) (*Bank, bool) {
	b, ok := l.byName[name]
	return b, ok
}

// Banks returns every registered bank in address order.
func (l *Loader) Banks() []*Bank {
	return l.banks
}

// TotalWords returns the size of the whole address space.
func (l *Loader) TotalWords() int64 {
	return l.next
}

// Begin asserts the start signal: writes are accepted until Finish.
func (l *Loader) Begin() {
	l.started = true
	l.done = false
	l.err = nil
}

// Write services one word of the protocol. A deasserted write-enable is a
// no-op. Writes before Begin, after Finish or outside every bank set the
// error flag instead of raising.
func (l *Loader) Write(address int64, data int32, writeEnable bool) {
	if !writeEnable {
		return
	}
	if !l.started || l.done {
		l.fail(fmt.Errorf("loader: write at %d outside an active load window", address))
		return
	}
	bank := l.lookup(address)
	if bank == nil {
		l.fail(fmt.Errorf("loader: address %d maps to no registered bank", address))
		return
	}
	idx := int(address - bank.Base)
	bank.dest[idx] = data
	bank.written[idx] = true
	bank.writes++
}

// Finish deasserts start and raises load_done. The error flag, once set,
// stays set until the next Begin.
func (l *Loader) Finish() {
	l.started = false
	l.done = true
}

// Done reports the load_done flag.
func (l *Loader) Done() bool {
	return l.done && l.err == nil
}

// Err reports the load_error channel, nil when the load succeeded so far.
func (l *Loader) Err() error {
	return l.err
}

// LoadBank bulk-writes a whole named bank through the protocol. It is the
// convenience path used by the driver and by tests.
func (l *Loader) LoadBank(name string, values []int32) error {
	bank, ok := l.byName[name]
	if !ok {
		return fmt.Errorf("loader: bank %s is not registered", name)
	}
	if len(values) != len(bank.dest) {
		return fmt.Errorf("loader: bank %s holds %d words, got %d", name, len(bank.dest), len(values))
	}
	for i, v := range values {
		l.Write(bank.Base+int64(i), v, true)
	}
	return l.err
}

func (l *Loader) lookup(address int64) *Bank {
	if address < 0 || address >= l.next {
		return nil
	}
	// Banks are contiguous and sorted by base.
	lo, hi := 0, len(l.banks)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		b := l.banks[mid]
		switch {
		case address < b.Base:
			hi = mid - 1
		case address >= b.Base+b.Size():
			lo = mid + 1
		default:
			return b
		}
	}
	return nil
}

func (l *Loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}
