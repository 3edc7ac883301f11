package cart

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// DraftKey is the local store key holding the serialized draft.
const DraftKey = "orderState"

// LocalStore is durable key-value storage local to the user session.
// Load reports false when nothing is stored under key.
type LocalStore interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Submitter hands a finalized order to the remote order store.
type Submitter interface {
	Submit(ctx context.Context, rec *order.Record) error
}

// ProductFilter answers whether a product may exist in the catalog. A false
// answer must be definitive.
type ProductFilter interface {
	MayContain(productID string) bool
}

// Phase is the externally visible lifecycle phase of the Machine.
type Phase int

const (
	// PhaseDraft accepts cart mutations.
	PhaseDraft Phase = iota
	// PhaseSubmitting rejects mutations until PlaceOrder returns.
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseDraft:
		return "draft"
	case PhaseSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Machine owns the single in-progress draft order. Every mutation is written
// through to the LocalStore before it becomes visible, so the stored draft is
// never behind the in-memory one.
type Machine struct {
	store     LocalStore
	submitter Submitter
	filter    ProductFilter
	newID     func() string
	now       func() time.Time
	lg        *zap.Logger

	mu    sync.Mutex
	state State
	phase Phase
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine logger.
func WithLogger(lg *zap.Logger) Option {
	return func(m *Machine) { m.lg = lg }
}

// WithProductFilter rejects additions of products the filter rules out.
func WithProductFilter(f ProductFilter) Option {
	return func(m *Machine) { m.filter = f }
}

// WithIDGenerator overrides the order ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Machine) { m.newID = newID }
}

// WithClock overrides the time source used when placing orders.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New restores the draft from store, or starts a fresh one, and persists it.
func New(ctx context.Context, store LocalStore, submitter Submitter, opts ...Option) (*Machine, error) {
	m := &Machine{
		store:     store,
		submitter: submitter,
		newID:     uuid.NewString,
		now:       time.Now,
		lg:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.restore(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) restore(ctx context.Context) error {
	data, ok, err := m.store.Load(ctx, DraftKey)
	if err != nil {
		return errors.Wrap(err, "load draft")
	}

	state := Fresh("")
	if ok {
		s, err := DecodeState(data)
		if err != nil {
			m.lg.Warn("Discarding unreadable draft", zap.Error(err))
		} else {
			state = s
		}
	}
	if state.OrderID == "" {
		state.OrderID = m.newID()
		m.lg.Info("Starting new draft", zap.String("order_id", state.OrderID))
	} else {
		m.lg.Debug("Draft restored",
			zap.String("order_id", state.OrderID),
			zap.Int("items", len(state.Items)),
		)
	}

	if err := m.save(ctx, state); err != nil {
		return err
	}
	m.state = state
	return nil
}

func (m *Machine) save(ctx context.Context, s State) error {
	if err := m.store.Save(ctx, DraftKey, EncodeState(s)); err != nil {
		return errors.Wrap(err, "save draft")
	}
	return nil
}

// Dispatch applies a to the draft and persists the result.
func (m *Machine) Dispatch(ctx context.Context, a Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseSubmitting {
		return ErrSubmitting
	}
	next := Reduce(m.state, a)
	if err := m.save(ctx, next); err != nil {
		return err
	}
	m.state = next
	return nil
}

// AddOrUpdateItem sets the quantity of productID, replacing any previous
// quantity.
func (m *Machine) AddOrUpdateItem(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return ErrEmptyProductID
	}
	if quantity < 1 {
		return &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	if m.filter != nil && !m.filter.MayContain(productID) {
		return &UnknownProductError{ProductID: productID}
	}
	return m.Dispatch(ctx, AddItem{ProductID: productID, Quantity: quantity})
}

// RemoveItem deletes the line item of productID. Removing an absent product
// is a no-op.
func (m *Machine) RemoveItem(ctx context.Context, productID string) error {
	return m.Dispatch(ctx, RemoveItem{ProductID: productID})
}

// ChangeQuantity adds delta to the quantity of productID, clamping at zero.
// A line item that reaches zero is kept. Absent products are left absent.
func (m *Machine) ChangeQuantity(ctx context.Context, productID string, delta int) error {
	return m.Dispatch(ctx, ChangeQuantity{ProductID: productID, Delta: delta})
}

// SetAdditionalDetail upserts an additional detail of the draft.
func (m *Machine) SetAdditionalDetail(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyDetailKey
	}
	return m.Dispatch(ctx, SetDetail{Key: key, Value: value})
}

// Discard drops the draft and starts a new one with a fresh order ID.
func (m *Machine) Discard(ctx context.Context) error {
	return m.Dispatch(ctx, Reset{OrderID: m.newID()})
}

// TotalQuantity returns the sum of all line item quantities.
func (m *Machine) TotalQuantity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TotalQuantity()
}

// IsInCart reports whether productID has a line item.
func (m *Machine) IsInCart(productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Contains(productID)
}

// QuantityOf returns the quantity of productID, 0 when absent.
func (m *Machine) QuantityOf(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.QuantityOf(productID)
}

// OrderID returns the ID of the active draft.
func (m *Machine) OrderID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.OrderID
}

// Snapshot returns a copy of the draft.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// PlaceOrder submits the draft as a pending order. On success the draft is
// replaced by an empty one with a new order ID and the submitted record is
// returned. On failure the draft is kept unchanged so the caller can retry.
func (m *Machine) PlaceOrder(ctx context.Context) (*order.Record, error) {
	m.mu.Lock()
	if m.phase == PhaseSubmitting {
		m.mu.Unlock()
		return nil, ErrSubmitting
	}
	if len(m.state.Items) == 0 {
		m.mu.Unlock()
		return nil, ErrEmptyCart
	}
	snapshot := m.state.Clone()
	m.phase = PhaseSubmitting
	m.mu.Unlock()

	rec := order.NewRecord(snapshot.OrderID, snapshot.Items, snapshot.Details, m.now())
	err := m.submitter.Submit(ctx, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseDraft

	if err != nil {
		m.lg.Warn("Order submission failed, draft kept",
			zap.String("order_id", snapshot.OrderID),
			zap.Error(err),
		)
		return nil, &SubmitError{OrderID: snapshot.OrderID, Err: err}
	}

	next := Fresh(m.newID())
	if err := m.save(ctx, next); err != nil {
		// The order is already stored; resubmitting it on the next load is
		// harmless because index appends skip known IDs.
		m.lg.Error("Persist fresh draft", zap.String("order_id", next.OrderID), zap.Error(err))
	}
	m.state = next

	m.lg.Info("Order placed",
		zap.String("order_id", rec.OrderID),
		zap.Int("items", len(rec.Items)),
		zap.String("next_order_id", next.OrderID),
	)
	return rec, nil
}
