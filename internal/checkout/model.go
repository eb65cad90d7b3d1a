package checkout

import (
	"sync"

	"storefront-orderflow/internal/cart"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/payment"
	"storefront-orderflow/internal/voucher"
)

type State string

const (
	StateDraft            State = "draft"
	StateVoucherEvaluated State = "voucher_evaluated"
	StateSubmitted        State = "submitted"
	StateAwaitingPayment  State = "awaiting_payment"
	StatePaidConfirmed    State = "paid_confirmed"
	StateCompleted        State = "completed"
	StateCancelled        State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Attempt is one pass through checkout. Its fields are only changed by
// the Orchestrator; read them through Snapshot.
type Attempt struct {
	mu sync.Mutex

	id            string
	state         State
	lines         []cart.Line
	address       order.Address
	paymentMethod order.PaymentMethod

	evaluation *voucher.Evaluation
	order      *order.Order
	reference  *payment.Reference
	err        error
}

// Snapshot is a read-only copy of an attempt.
type Snapshot struct {
	ID            string
	State         State
	Lines         []cart.Line
	Address       order.Address
	PaymentMethod order.PaymentMethod
	Evaluation    *voucher.Evaluation
	Order         *order.Order
	Reference     *payment.Reference
	Err           error
}

func (a *Attempt) ID() string { return a.id }

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		ID:            a.id,
		State:         a.state,
		Lines:         append([]cart.Line(nil), a.lines...),
		Address:       a.address,
		PaymentMethod: a.paymentMethod,
		Reference:     a.reference,
		Err:           a.err,
	}
	if a.evaluation != nil {
		e := *a.evaluation
		s.Evaluation = &e
	}
	if a.order != nil {
		s.Order = a.order.Clone()
	}
	return s
}

func (a *Attempt) subtotal() int64 {
	var total int64
	for _, l := range a.lines {
		total += l.Subtotal()
	}
	return total
}

// Result is what a successful submit hands back to the caller.
type Result struct {
	State     State
	Order     *order.Order
	Reference *payment.Reference
}
