package domain

// BookingOutcome is the settlement result for one booking
type BookingOutcome struct {
	BookingID        string  `json:"booking_id"`
	UserID           string  `json:"user_id"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	Tickets          int     `json:"tickets"`
	Amount           float64 `json:"amount"`
	Refunded         bool    `json:"refunded"`
	// Skipped is set for bookings with nothing to refund
	Skipped  bool   `json:"skipped,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// NewBookingOutcome creates an unresolved outcome for b
func NewBookingOutcome(b *Booking) BookingOutcome {
	return BookingOutcome{
		BookingID:        b.ID,
		UserID:           b.UserID,
		PaymentReference: b.PaymentReference,
		Tickets:          b.NumberOfTickets,
		Amount:           b.TotalPrice,
		Skipped:          !b.NeedsRefund(),
	}
}

// Failed reports whether the refund for this booking did not go through
func (o *BookingOutcome) Failed() bool {
	return !o.Skipped && !o.Refunded
}

// Fail records a refund error
func (o *BookingOutcome) Fail(err error, attempts int) {
	o.Refunded = false
	o.Err = err
	o.Attempts = attempts
	if err != nil {
		o.Error = err.Error()
	}
}

// Succeed records a completed refund
func (o *BookingOutcome) Succeed(attempts int) {
	o.Refunded = true
	o.Err = nil
	o.Error = ""
	o.Attempts = attempts
}

// SettlementResult collects the outcome of settling a set of bookings
type SettlementResult struct {
	Outcomes        []BookingOutcome `json:"outcomes"`
	RestoredTickets int              `json:"restored_tickets"`
}

// Failed returns outcomes whose refund did not succeed
func (r *SettlementResult) Failed() []BookingOutcome {
	var out []BookingOutcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns outcomes that were refunded or needed no refund
func (r *SettlementResult) Succeeded() []BookingOutcome {
	var out []BookingOutcome
	for _, o := range r.Outcomes {
		if !o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

func (r *SettlementResult) HasFailures() bool {
	for _, o := range r.Outcomes {
		if o.Failed() {
			return true
		}
	}
	return false
}

// Merge appends another round's outcomes
func (r *SettlementResult) Merge(other *SettlementResult) {
	if other == nil {
		return
	}
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
	r.RestoredTickets += other.RestoredTickets
}
