package repositories

import "context"

// TxFn runs inside a transaction; the ctx it receives carries the open
// transaction for every repository call made through it.
type TxFn func(ctx context.Context) error

// TransactionManager runs multi-statement repository work atomically, such
// as deleting a conversation together with its messages.
type TransactionManager interface {
	// ExecTx begins a transaction, runs fn, and commits. Any error from fn
	// rolls the transaction back and is returned unchanged.
	ExecTx(ctx context.Context, fn TxFn) error
}
