package order

import (
	"fmt"
	"time"
)

type CODPaymentPolicy string

const (
	// CODPaidOnDelivery marks COD orders paid when they are delivered.
	CODPaidOnDelivery CODPaymentPolicy = "on_delivery"
	// CODPaidManually leaves COD payment to an explicit change.
	CODPaidManually CODPaymentPolicy = "manual"
)

func ParseCODPolicy(s string) CODPaymentPolicy {
	if CODPaymentPolicy(s) == CODPaidManually {
		return CODPaidManually
	}
	return CODPaidOnDelivery
}

var paymentMoves = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid: {PaymentPaid, PaymentFailed},
	PaymentFailed: {PaymentPaid, PaymentUnpaid},
	PaymentPaid:   nil,
}

type StateMachine struct {
	codPolicy CODPaymentPolicy
}

func NewStateMachine(policy CODPaymentPolicy) *StateMachine {
	return &StateMachine{codPolicy: policy}
}

// Transition validates c against o and returns the updated copy. o is
// never modified; on error nothing changes.
func (m *StateMachine) Transition(o *Order, c Change, a Actor, now time.Time) (*Order, error) {
	nextStatus := o.Status
	if c.Status != nil {
		nextStatus = *c.Status
	}
	nextPayment := o.PaymentStatus
	if c.PaymentStatus != nil {
		nextPayment = *c.PaymentStatus
	}

	reject := func(reason string, args ...any) (*Order, error) {
		return nil, &TransitionError{From: o.Status, To: nextStatus, Reason: fmt.Sprintf(reason, args...)}
	}

	if c.Status == nil && c.PaymentStatus == nil {
		return reject("empty change")
	}
	if !nextStatus.Valid() {
		return reject("unknown status %q", nextStatus)
	}
	if !nextPayment.Valid() {
		return reject("unknown payment status %q", nextPayment)
	}

	statusChanged := nextStatus != o.Status
	paymentChanged := nextPayment != o.PaymentStatus

	if !statusChanged && !paymentChanged {
		return reject("nothing to change")
	}

	switch a.Kind {
	case ActorAdmin, ActorSystem:
	case ActorGateway:
		if statusChanged {
			return reject("payment gateway may only change payment status")
		}
	case ActorCustomer:
		if paymentChanged || nextStatus != StatusCancelled {
			return reject("customers may only cancel")
		}
		if o.Status != StatusPending || o.PaymentStatus == PaymentPaid {
			return reject("order can no longer be cancelled by the customer")
		}
	default:
		return reject("unknown actor %q", a.Kind)
	}

	if statusChanged {
		if o.Status.Terminal() {
			return reject("%s is terminal", o.Status)
		}
		if nextStatus != StatusCancelled && progress[nextStatus] <= progress[o.Status] {
			return reject("status cannot move backward")
		}
	}

	if paymentChanged && !paymentAllowed(o.PaymentStatus, nextPayment) {
		return reject("payment cannot move from %s to %s", o.PaymentStatus, nextPayment)
	}

	if statusChanged && nextStatus == StatusDelivered &&
		o.PaymentMethod == PaymentCOD && m.codPolicy == CODPaidOnDelivery {
		nextPayment = PaymentPaid
	}

	if o.PaymentMethod.Prepaid() && nextStatus != StatusCancelled &&
		progress[nextStatus] >= progress[StatusConfirmed] && nextPayment != PaymentPaid {
		return reject("%s order must be paid before it is confirmed", o.PaymentMethod)
	}

	next := o.Clone()
	next.Status = nextStatus
	next.PaymentStatus = nextPayment
	next.UpdatedAt = now
	next.Version++
	return next, nil
}

func paymentAllowed(from, to PaymentStatus) bool {
	for _, p := range paymentMoves[from] {
		if p == to {
			return true
		}
	}
	return false
}
