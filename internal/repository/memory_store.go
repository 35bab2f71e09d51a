package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
)

type memData struct {
	events       map[string]domain.Event
	bookings     map[string]domain.Booking
	bookingOrder []string
	refunds      map[string]domain.Refund
	outbox       map[string]domain.OutboxMessage
	outboxOrder  []string
}

func newMemData() *memData {
	return &memData{
		events:   make(map[string]domain.Event),
		bookings: make(map[string]domain.Booking),
		refunds:  make(map[string]domain.Refund),
		outbox:   make(map[string]domain.OutboxMessage),
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		events:       make(map[string]domain.Event, len(d.events)),
		bookings:     make(map[string]domain.Booking, len(d.bookings)),
		bookingOrder: append([]string(nil), d.bookingOrder...),
		refunds:      make(map[string]domain.Refund, len(d.refunds)),
		outbox:       make(map[string]domain.OutboxMessage, len(d.outbox)),
		outboxOrder:  append([]string(nil), d.outboxOrder...),
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.bookings {
		c.bookings[k] = v
	}
	for k, v := range d.refunds {
		c.refunds[k] = v
	}
	for k, v := range d.outbox {
		c.outbox[k] = v
	}
	return c
}

// MemoryStore is an in-process Store. A single mutex serializes every
// operation, and WithinTx holds it for the whole callback, restoring a
// snapshot when the callback fails.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memData
	inTx bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.Mutex{}, data: newMemData()}
}

func (s *MemoryStore) Events() EventRepository { return &memEventRepository{s: s} }
func (s *MemoryStore) Inventory() InventoryRepository { return &memInventoryRepository{s: s} }
func (s *MemoryStore) Bookings() BookingRepository { return &memBookingRepository{s: s} }
func (s *MemoryStore) Refunds() RefundRepository { return &memRefundRepository{s: s} }
func (s *MemoryStore) Outbox() OutboxRepository { return &memOutboxRepository{s: s} }

// lock is a no-op for a tx-bound store since WithinTx already holds the mutex
func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	snapshot := s.data.clone()
	if err := fn(&MemoryStore{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

type memEventRepository struct {
	s *MemoryStore
}

func (r *memEventRepository) Create(_ context.Context, e *domain.Event) error {
	defer r.s.lock()()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.s.data.events[e.ID] = *e
	return nil
}

func (r *memEventRepository) GetByID(_ context.Context, id string) (*domain.Event, error) {
	defer r.s.lock()()
	return r.live(id)
}

func (r *memEventRepository) GetForUpdate(_ context.Context, id string) (*domain.Event, error) {
	defer r.s.lock()()
	return r.live(id)
}

func (r *memEventRepository) live(id string) (*domain.Event, error) {
	e, ok := r.s.data.events[id]
	if !ok || e.DeletedAt != nil {
		return nil, domain.ErrEventNotFound
	}
	return &e, nil
}

func (r *memEventRepository) Update(_ context.Context, e *domain.Event) error {
	defer r.s.lock()()
	cur, err := r.live(e.ID)
	if err != nil {
		return err
	}
	updated := *e
	updated.OrganizerID = cur.OrganizerID
	updated.CreatedAt = cur.CreatedAt
	updated.Currency = cur.Currency
	updated.DeletedAt = nil
	updated.StatusEpoch = cur.StatusEpoch
	if updated.Status != cur.Status {
		updated.StatusEpoch++
	}
	e.StatusEpoch = updated.StatusEpoch
	r.s.data.events[e.ID] = updated
	return nil
}

func (r *memEventRepository) UpdateStatus(_ context.Context, id string, status domain.EventStatus) error {
	defer r.s.lock()()
	e, err := r.live(id)
	if err != nil {
		return err
	}
	if e.Status != status {
		e.StatusEpoch++
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	r.s.data.events[id] = *e
	return nil
}

func (r *memEventRepository) SoftDelete(_ context.Context, id string, at time.Time) error {
	defer r.s.lock()()
	e, err := r.live(id)
	if err != nil {
		return err
	}
	e.DeletedAt = &at
	e.UpdatedAt = at
	r.s.data.events[id] = *e
	return nil
}

type memInventoryRepository struct {
	s *MemoryStore
}

func (r *memInventoryRepository) Reserve(_ context.Context, eventID string, quantity int) (*domain.Reservation, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	defer r.s.lock()()

	e, ok := r.s.data.events[eventID]
	switch {
	case !ok || e.DeletedAt != nil:
		return nil, domain.ErrEventNotFound
	case e.Status != domain.EventStatusApproved:
		return nil, domain.ErrEventNotBookable
	case e.RemainingTickets < quantity:
		return nil, domain.ErrInsufficientInventory
	}

	e.RemainingTickets -= quantity
	e.UpdatedAt = time.Now()
	r.s.data.events[eventID] = e
	return &domain.Reservation{
		EventID:     eventID,
		Quantity:    quantity,
		Remaining:   e.RemainingTickets,
		StatusEpoch: e.StatusEpoch,
	}, nil
}

func (r *memInventoryRepository) Release(_ context.Context, eventID string, quantity int) (int, error) {
	if quantity < 0 {
		return 0, domain.ErrInvalidQuantity
	}
	defer r.s.lock()()

	e, ok := r.s.data.events[eventID]
	if !ok {
		return 0, domain.ErrEventNotFound
	}
	e.RemainingTickets = min(e.TotalTickets, e.RemainingTickets+quantity)
	e.UpdatedAt = time.Now()
	r.s.data.events[eventID] = e
	return e.RemainingTickets, nil
}

func (r *memInventoryRepository) SetRemaining(_ context.Context, eventID string, value int) error {
	defer r.s.lock()()

	e, ok := r.s.data.events[eventID]
	if !ok || e.DeletedAt != nil {
		return domain.ErrEventNotFound
	}
	if value < 0 || value > e.TotalTickets {
		return domain.NewValidationError("remaining_tickets", "must be between 0 and total_tickets")
	}
	e.RemainingTickets = value
	e.UpdatedAt = time.Now()
	r.s.data.events[eventID] = e
	return nil
}

type memBookingRepository struct {
	s *MemoryStore
}

func (r *memBookingRepository) Create(_ context.Context, b *domain.Booking) error {
	defer r.s.lock()()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, exists := r.s.data.bookings[b.ID]; exists {
		return domain.ErrConflict
	}
	r.s.data.bookings[b.ID] = *b
	r.s.data.bookingOrder = append(r.s.data.bookingOrder, b.ID)
	return nil
}

func (r *memBookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	defer r.s.lock()()
	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

func (r *memBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *memBookingRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error) {
	defer r.s.lock()()

	var matched []*domain.Booking
	for i := len(r.s.data.bookingOrder) - 1; i >= 0; i-- {
		b := r.s.data.bookings[r.s.data.bookingOrder[i]]
		if b.UserID == userID {
			matched = append(matched, &b)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (r *memBookingRepository) ListConfirmedByEvent(_ context.Context, eventID string) ([]*domain.Booking, error) {
	defer r.s.lock()()

	var out []*domain.Booking
	for _, id := range r.s.data.bookingOrder {
		b := r.s.data.bookings[id]
		if b.EventID == eventID && b.IsConfirmed() {
			out = append(out, &b)
		}
	}
	return out, nil
}

func (r *memBookingRepository) Cancel(_ context.Context, ids []string, reason domain.CancelReason, at time.Time) (int, error) {
	defer r.s.lock()()

	n := 0
	for _, id := range ids {
		b, ok := r.s.data.bookings[id]
		if !ok || !b.IsConfirmed() {
			continue
		}
		_ = b.Cancel(reason, at)
		r.s.data.bookings[id] = b
		n++
	}
	return n, nil
}

type memRefundRepository struct {
	s *MemoryStore
}

func (r *memRefundRepository) Create(_ context.Context, rf *domain.Refund) error {
	defer r.s.lock()()

	for id, existing := range r.s.data.refunds {
		if existing.BookingID != rf.BookingID {
			continue
		}
		existing.Status = rf.Status
		existing.Attempts += rf.Attempts
		existing.LastError = rf.LastError
		existing.UpdatedAt = rf.UpdatedAt
		r.s.data.refunds[id] = existing
		rf.ID = existing.ID
		rf.Attempts = existing.Attempts
		return nil
	}

	if rf.ID == "" {
		rf.ID = uuid.NewString()
	}
	r.s.data.refunds[rf.ID] = *rf
	return nil
}

func (r *memRefundRepository) Update(_ context.Context, rf *domain.Refund) error {
	defer r.s.lock()()

	existing, ok := r.s.data.refunds[rf.ID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	existing.Status = rf.Status
	existing.Attempts = rf.Attempts
	existing.LastError = rf.LastError
	existing.UpdatedAt = rf.UpdatedAt
	r.s.data.refunds[rf.ID] = existing
	return nil
}

func (r *memRefundRepository) GetByBookingID(_ context.Context, bookingID string) (*domain.Refund, error) {
	defer r.s.lock()()

	for _, rf := range r.s.data.refunds {
		if rf.BookingID == bookingID {
			return &rf, nil
		}
	}
	return nil, domain.ErrBookingNotFound
}

func (r *memRefundRepository) ListByEvent(_ context.Context, eventID string, status domain.RefundStatus) ([]*domain.Refund, error) {
	defer r.s.lock()()

	var out []*domain.Refund
	for _, rf := range r.s.data.refunds {
		if rf.EventID == eventID && rf.Status == status {
			out = append(out, &rf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRefundRepository) ListRetryable(_ context.Context, olderThan time.Time, maxAttempts, limit int) ([]*domain.Refund, error) {
	defer r.s.lock()()

	var out []*domain.Refund
	for _, rf := range r.s.data.refunds {
		if rf.Status == domain.RefundStatusSucceeded || rf.Attempts >= maxAttempts || !rf.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, &rf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memOutboxRepository struct {
	s *MemoryStore
}

func (r *memOutboxRepository) Create(_ context.Context, msg *domain.OutboxMessage) error {
	defer r.s.lock()()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.s.data.outbox[msg.ID] = *msg
	r.s.data.outboxOrder = append(r.s.data.outboxOrder, msg.ID)
	return nil
}

func (r *memOutboxRepository) GetPending(_ context.Context, limit int) ([]*domain.OutboxMessage, error) {
	defer r.s.lock()()

	var out []*domain.OutboxMessage
	for _, id := range r.s.data.outboxOrder {
		m, ok := r.s.data.outbox[id]
		if !ok || m.Status != domain.OutboxStatusPending {
			continue
		}
		out = append(out, &m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memOutboxRepository) Update(_ context.Context, msg *domain.OutboxMessage) error {
	defer r.s.lock()()
	if _, ok := r.s.data.outbox[msg.ID]; !ok {
		return domain.ErrConflict
	}
	r.s.data.outbox[msg.ID] = *msg
	return nil
}

func (r *memOutboxRepository) DeletePublishedBefore(_ context.Context, before time.Time) (int64, error) {
	defer r.s.lock()()

	var n int64
	kept := r.s.data.outboxOrder[:0]
	for _, id := range r.s.data.outboxOrder {
		m := r.s.data.outbox[id]
		if m.Status == domain.OutboxStatusPublished && m.PublishedAt != nil && m.PublishedAt.Before(before) {
			delete(r.s.data.outbox, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	r.s.data.outboxOrder = kept
	return n, nil
}
