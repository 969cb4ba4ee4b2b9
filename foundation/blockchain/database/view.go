package database

import "fmt"

// ErrorCatchingView wraps the base coin view so that an I/O failure on read
// is never misreported as "coin not found". Trying to validate on top of a
// corrupted chainstate would be far worse than going down, so the wrapper
// reports the failure and terminates the process. Writes are not wrapped;
// write failure is the committer's responsibility.
type ErrorCatchingView struct {
	base  CoinView
	ev    func(v string, args ...any)
	abort func()
}

// NewErrorCatchingView constructs the wrapper. The abort function is what
// runs after logging on a read failure; production wires process
// termination, tests substitute their own.
func NewErrorCatchingView(base CoinView, ev func(v string, args ...any), abort func()) *ErrorCatchingView {
	return &ErrorCatchingView{
		base:  base,
		ev:    ev,
		abort: abort,
	}
}

// GetCoin returns the unspent coin at the outpoint. A read error does not
// return: the database is corrupted and the process must stop.
func (v *ErrorCatchingView) GetCoin(op OutPoint) (Coin, bool, error) {
	coin, ok, err := v.base.GetCoin(op)
	if err != nil {
		v.ev("view: GetCoin: FATAL: corrupted block database detected: %s", err)
		v.abort()

		// Only reached when a test substitutes the abort function.
		return Coin{}, false, err
	}

	return coin, ok, nil
}

// BatchWriteCoins passes batched writes through unwrapped. Write failure
// is the committer's responsibility, not a corruption signal.
func (v *ErrorCatchingView) BatchWriteCoins(coins map[OutPoint]*Coin) error {
	writer, ok := v.base.(CoinWriter)
	if !ok {
		return fmt.Errorf("base view does not support batched writes")
	}
	return writer.BatchWriteCoins(coins)
}
