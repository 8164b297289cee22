package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrBudgetExceeded es la causa de los panics de BudgetAllocator.
var ErrBudgetExceeded = errors.New("presupuesto de memoria excedido")

// BudgetError describe la asignacion que supero el limite.
type BudgetError struct {
	Requested int64
	Used      int64
	Limit     int64
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("%v: pedidos %d bytes con %d en uso (limite %d)", ErrBudgetExceeded, e.Requested, e.Used, e.Limit)
}

func (e *BudgetError) Unwrap() error { return ErrBudgetExceeded }

// BudgetAllocator limita los bytes vivos asignados a traves de el.
// memory.Allocator no devuelve errores, asi que superar el limite provoca
// un panic con *BudgetError; quien lo use debe recuperarlo.
// Un limite <= 0 desactiva el control.
type BudgetAllocator struct {
	parent memory.Allocator
	limit  int64
	used   atomic.Int64
}

var _ memory.Allocator = (*BudgetAllocator)(nil)

func NewBudgetAllocator(parent memory.Allocator, limit int64) *BudgetAllocator {
	if parent == nil {
		parent = memory.DefaultAllocator
	}
	return &BudgetAllocator{parent: parent, limit: limit}
}

func (a *BudgetAllocator) Allocate(size int) []byte {
	a.reserve(int64(size))
	return a.parent.Allocate(size)
}

func (a *BudgetAllocator) Reallocate(size int, b []byte) []byte {
	a.reserve(int64(size - len(b)))
	return a.parent.Reallocate(size, b)
}

func (a *BudgetAllocator) Free(b []byte) {
	a.used.Add(-int64(len(b)))
	a.parent.Free(b)
}

// Used devuelve los bytes vivos.
func (a *BudgetAllocator) Used() int64 { return a.used.Load() }

func (a *BudgetAllocator) Limit() int64 { return a.limit }

func (a *BudgetAllocator) reserve(n int64) {
	now := a.used.Add(n)
	if a.limit <= 0 || n <= 0 || now <= a.limit {
		return
	}
	a.used.Add(-n)
	panic(&BudgetError{Requested: n, Used: now - n, Limit: a.limit})
}
