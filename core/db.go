package core

import "context"

// Transactor runs a unit of work atomically: either every write made through ctx inside fn
// is committed, or none is. Calls made with a ctx that already carries a unit of work join it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
