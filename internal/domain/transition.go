package domain

import "fmt"

// TransitionEffect is the side effect a status change has on inventory and bookings
type TransitionEffect int

const (
	// EffectNoop means the status is unchanged and nothing is written
	EffectNoop TransitionEffect = iota
	// EffectNone writes the status only
	EffectNone
	// EffectSettle cancels and refunds every confirmed booking
	EffectSettle
	// EffectResetInventory sets remaining tickets back to total
	EffectResetInventory
)

func (e TransitionEffect) String() string {
	switch e {
	case EffectNoop:
		return "noop"
	case EffectNone:
		return "none"
	case EffectSettle:
		return "settle"
	case EffectResetInventory:
		return "reset_inventory"
	}
	return "unknown"
}

type transitionKey struct {
	from, to EventStatus
}

// TransitionTable is the complete set of allowed status transitions
var TransitionTable = map[transitionKey]TransitionEffect{
	{EventStatusPending, EventStatusApproved}:  EffectNone,
	{EventStatusPending, EventStatusDeclined}:  EffectNone,
	{EventStatusApproved, EventStatusPending}:  EffectSettle,
	{EventStatusApproved, EventStatusDeclined}: EffectSettle,
	{EventStatusDeclined, EventStatusPending}:  EffectNone,
	{EventStatusDeclined, EventStatusApproved}: EffectResetInventory,
}

// Transition looks up the effect of moving from one status to another
func Transition(from, to EventStatus) (TransitionEffect, error) {
	if !from.IsValid() || !to.IsValid() {
		return 0, fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	if from == to {
		return EffectNoop, nil
	}
	effect, ok := TransitionTable[transitionKey{from, to}]
	if !ok {
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return effect, nil
}
