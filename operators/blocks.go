// Package operators supplies the discrete blocks of a saddle-point system
//
//	[ A   B^T ] [u]   [f]
//	[ B   -C  ] [p] = [g]
//
// together with the pressure-space operators used by the PCD family of
// Schur complement approximations.
package operators

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/notargets/gopcd/utils"
)

type BlockName uint8

const (
	Velocity          BlockName = iota // A, n_u x n_u
	Divergence                         // B, n_p x n_u
	Gradient                           // B^T, n_u x n_p
	PressureMass                       // M_p, n_p x n_p
	PressureConvDiff                   // F_p = nu*A_p + K_p, n_p x n_p
	PressureLaplacian                  // A_p, n_p x n_p
	Stabilization                      // C, n_p x n_p, only for unstable element pairs
	InflowBoundary                     // R_p = -(w.n) on the inflow boundary, n_p x n_p
)

var (
	BlockNames = map[string]BlockName{
		"velocity":           Velocity,
		"divergence":         Divergence,
		"gradient":           Gradient,
		"pressure_mass":      PressureMass,
		"pressure_convdiff":  PressureConvDiff,
		"pressure_laplacian": PressureLaplacian,
		"stabilization":      Stabilization,
		"pressure_inflow":    InflowBoundary,
	}
	BlockPrintNames = []string{"velocity", "divergence", "gradient", "pressure_mass",
		"pressure_convdiff", "pressure_laplacian", "stabilization", "pressure_inflow"}
)

func (bn BlockName) String() string {
	if int(bn) < len(BlockPrintNames) {
		return BlockPrintNames[bn]
	}
	return fmt.Sprintf("BlockName(%d)", bn)
}

func NewBlockName(label string) (bn BlockName, err error) {
	var (
		ok bool
	)
	if bn, ok = BlockNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("unknown operator block named %s", label)
	}
	return
}

var ErrMissingOperator = errors.New("operators: missing operator")

// MissingOperatorError reports a block the discretization did not assemble,
// or a boundary configuration that cannot support the requested operator.
type MissingOperatorError struct {
	Block  BlockName
	Reason string
}

func (e *MissingOperatorError) Error() string {
	if len(e.Reason) == 0 {
		return fmt.Sprintf("operators: block %s was not assembled", e.Block)
	}
	return fmt.Sprintf("operators: block %s unavailable: %s", e.Block, e.Reason)
}

func (e *MissingOperatorError) Is(target error) bool { return target == ErrMissingOperator }

// Provider is the contract between the discretization and the
// preconditioner. Handles are read-only; storage stays with the provider.
type Provider interface {
	Block(name BlockName) (utils.CSR, error)
}

// Blocks is an in-memory Provider. Every Set is a reassembly and notifies
// subscribers, which is how assembled preconditioners learn they are stale.
type Blocks struct {
	mu          sync.RWMutex
	blocks      map[BlockName]utils.CSR
	revision    int
	subscribers []subscription
	nextID      int
	boundary    PressureBoundary
}

type subscription struct {
	id int
	fn func(name BlockName)
}

func NewBlocks() *Blocks {
	return &Blocks{
		blocks: make(map[BlockName]utils.CSR),
	}
}

func (b *Blocks) Block(name BlockName) (m utils.CSR, err error) {
	var (
		ok bool
	)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if m, ok = b.blocks[name]; !ok {
		err = &MissingOperatorError{Block: name}
	}
	return
}

// Set stores a read-only copy of m and notifies subscribers
func (b *Blocks) Set(name BlockName, m utils.CSR) {
	m = m.Copy()
	m.SetReadOnly(name.String())
	b.mu.Lock()
	b.blocks[name] = m
	b.revision++
	subs := append([]subscription{}, b.subscribers...)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.fn(name)
	}
}

func (b *Blocks) Has(name BlockName) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocks[name]
	return ok
}

// Revision counts reassemblies since construction
func (b *Blocks) Revision() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// Subscribe registers fn for every reassembly. Calling the returned function
// removes it again, repeated calls are harmless.
func (b *Blocks) Subscribe(fn func(name BlockName)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers = append(b.subscribers, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subscribers {
			if sub.id == id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (b *Blocks) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
