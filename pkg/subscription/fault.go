package subscription

import "slices"

// Op names a MockPlatform operation for fault injection and call counting.
type Op string

const (
	OpStatus   Op = "status"
	OpProducts Op = "products"
	OpPurchase Op = "purchase"
	OpRestore  Op = "restore"
	OpRefresh  Op = "refresh"
	OpVerify   Op = "verify"
	OpCancel   Op = "cancel"
	OpManage   Op = "manage"
	OpHistory  Op = "history"
	OpPending  Op = "pending"
)

// FaultPolicy decides whether the n-th call (1-based) of op fails.
// Implementations must be deterministic.
type FaultPolicy interface {
	Fault(op Op, call int) error
}

// FaultFunc adapts a function to FaultPolicy.
type FaultFunc func(op Op, call int) error

func (f FaultFunc) Fault(op Op, call int) error { return f(op, call) }

// NoFaults never fails.
func NoFaults() FaultPolicy {
	return FaultFunc(func(Op, int) error { return nil })
}

// FailAlways fails every call of the listed ops with kind.
// With no ops listed, every operation fails.
func FailAlways(kind ErrorKind, ops ...Op) FaultPolicy {
	return FaultFunc(func(op Op, _ int) error {
		if !matches(ops, op) {
			return nil
		}
		return injected(kind, op)
	})
}

// FailNext fails the first n calls of each listed op with kind and lets
// later calls through. With no ops listed, every operation is affected.
func FailNext(kind ErrorKind, n int, ops ...Op) FaultPolicy {
	return FaultFunc(func(op Op, call int) error {
		if call > n || !matches(ops, op) {
			return nil
		}
		return injected(kind, op)
	})
}

// Sequence scripts the outcome of consecutive calls of one op: kinds[i]
// decides call i+1. KindUnknown entries and calls past the end succeed.
func Sequence(op Op, kinds ...ErrorKind) FaultPolicy {
	return FaultFunc(func(got Op, call int) error {
		if got != op || call > len(kinds) || kinds[call-1] == KindUnknown {
			return nil
		}
		return injected(kinds[call-1], op)
	})
}

func matches(ops []Op, op Op) bool {
	return len(ops) == 0 || slices.Contains(ops, op)
}

func injected(kind ErrorKind, op Op) error {
	return NewError(kind, string(op), "simulated platform failure", ErrInjectedFault)
}
