package order

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/order"

// listConcurrency bounds parallel record reads when resolving an index.
const listConcurrency = 8

// NotFoundError indicates that no order record exists for the given ID.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// NewRecord builds a pending order record created at now.
func NewRecord(orderID string, items []LineItem, details map[string]string, now time.Time) *Record {
	r := &Record{
		OrderID:   orderID,
		Items:     slices.Clone(items),
		Details:   maps.Clone(details),
		Status:    StatusPending,
		CreatedOn: now,
		UpdatedOn: now,
		Timeline:  Timeline{},
	}
	if r.Details == nil {
		r.Details = map[string]string{}
	}
	r.Timeline.Append(now, StatusPending)
	return r
}

// Update describes an edit of a submitted order.
type Update struct {
	// Status is the new status. Empty keeps the current one.
	Status Status
	// Details are merged into the order's additional details.
	Details map[string]string
	// By is recorded as the updated_by attribution when set.
	By string
}

// Service reads and writes order records and the per-user and per-customer
// order indexes.
type Service struct {
	store Store
	lg    *zap.Logger
	now   func() time.Time

	tracer       trace.Tracer
	submitted    metric.Int64Counter
	failed       metric.Int64Counter
	indexAppends metric.Int64Counter
}

type options struct {
	lg  *zap.Logger
	tp  trace.TracerProvider
	mp  metric.MeterProvider
	now func() time.Time
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the service logger.
func WithLogger(lg *zap.Logger) Option {
	return func(o *options) { o.lg = lg }
}

// WithTracerProvider sets the tracer provider used for submission spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// WithClock overrides the time source used for updates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewService creates an order Service on top of the given document store.
func NewService(store Store, opts ...Option) (*Service, error) {
	o := options{
		lg:  zap.NewNop(),
		tp:  otel.GetTracerProvider(),
		mp:  otel.GetMeterProvider(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.mp.Meter(instrumentationName)
	submitted, err := meter.Int64Counter("storefront.orders.submitted",
		metric.WithDescription("Orders whose record and indexes were written"))
	if err != nil {
		return nil, errors.Wrap(err, "create submitted counter")
	}
	failed, err := meter.Int64Counter("storefront.orders.submit_failures",
		metric.WithDescription("Order submissions that failed at any write"))
	if err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}
	indexAppends, err := meter.Int64Counter("storefront.orders.index_appends",
		metric.WithDescription("Order IDs appended to user or customer indexes"))
	if err != nil {
		return nil, errors.Wrap(err, "create index counter")
	}

	return &Service{
		store:        store,
		lg:           o.lg,
		now:          o.now,
		tracer:       o.tp.Tracer(instrumentationName),
		submitted:    submitted,
		failed:       failed,
		indexAppends: indexAppends,
	}, nil
}

// Submit writes the order record and then, when the order is attributed to a
// user, appends it to that user's index and to the customer's index.
//
// The writes are sequential and independent: a failure stops the remaining
// writes and nothing already written is rolled back. Index appends skip IDs
// that are already present, so resubmitting the same record is safe.
func (s *Service) Submit(ctx context.Context, rec *Record) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Submit",
		trace.WithAttributes(attribute.String("order.id", rec.OrderID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "submit order")
			s.failed.Add(ctx, 1)
		} else {
			s.submitted.Add(ctx, 1)
		}
		span.End()
	}()

	if err := s.store.Put(ctx, OrderPath(rec.OrderID), EncodeRecord(rec)); err != nil {
		return errors.Wrap(err, "write order record")
	}

	userID := rec.CreatedBy()
	if userID == "" {
		return nil
	}
	if err := s.appendIndex(ctx, "user", UserIndexPath(userID), rec.OrderID); err != nil {
		return errors.Wrap(err, "append user index")
	}

	if customerID := rec.CustomerID(); customerID != "" {
		if err := s.appendIndex(ctx, "customer", CustomerIndexPath(customerID), rec.OrderID); err != nil {
			return errors.Wrap(err, "append customer index")
		}
	}

	s.lg.Debug("Order submitted",
		zap.String("order_id", rec.OrderID),
		zap.String("created_by", userID),
	)
	return nil
}

func (s *Service) appendIndex(ctx context.Context, kind, path, orderID string) error {
	ix, err := s.readIndex(ctx, path)
	if err != nil {
		return err
	}
	if !ix.Append(orderID) {
		s.lg.Debug("Order already indexed", zap.String("path", path), zap.String("order_id", orderID))
		return nil
	}
	if err := s.store.Put(ctx, path, EncodeIndex(ix)); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	s.indexAppends.Add(ctx, 1, metric.WithAttributes(attribute.String("index", kind)))
	return nil
}

func (s *Service) readIndex(ctx context.Context, path string) (*Index, error) {
	data, ok, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if !ok {
		return &Index{}, nil
	}
	return DecodeIndex(data)
}

// Get returns the order record with the given ID.
func (s *Service) Get(ctx context.Context, orderID string) (*Record, error) {
	data, ok, err := s.store.Get(ctx, OrderPath(orderID))
	if err != nil {
		return nil, errors.Wrapf(err, "read order %s", orderID)
	}
	if !ok {
		return nil, &NotFoundError{OrderID: orderID}
	}
	return DecodeRecord(data)
}

// Update applies u to a submitted order. A status change is appended to the
// order timeline; prior entries are kept as they are.
func (s *Service) Update(ctx context.Context, orderID string, u Update) (*Record, error) {
	if u.Status != "" {
		if _, err := ParseStatus(string(u.Status)); err != nil {
			return nil, err
		}
	}

	rec, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for k, v := range u.Details {
		rec.Details[k] = v
	}
	if u.By != "" {
		rec.Details[DetailUpdatedBy] = u.By
	}
	if u.Status != "" && u.Status != rec.Status {
		rec.Status = u.Status
		rec.Timeline.Append(now, u.Status)
	}
	rec.UpdatedOn = now

	if err := s.store.Put(ctx, OrderPath(orderID), EncodeRecord(rec)); err != nil {
		return nil, errors.Wrapf(err, "write order %s", orderID)
	}
	return rec, nil
}

// ListByUser returns the orders attributed to userID, most recently updated
// first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	return s.listIndex(ctx, UserIndexPath(userID))
}

// ListByCustomer returns the orders placed for customerID, most recently
// updated first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*Record, error) {
	return s.listIndex(ctx, CustomerIndexPath(customerID))
}

// listIndex resolves every order of an index. Indexed orders without a record
// are skipped.
func (s *Service) listIndex(ctx context.Context, path string) ([]*Record, error) {
	ix, err := s.readIndex(ctx, path)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, len(ix.Orders))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, id := range ix.Orders {
		g.Go(func() error {
			rec, err := s.Get(ctx, id)
			if err != nil {
				var nf *NotFoundError
				if errors.As(err, &nf) {
					s.lg.Warn("Indexed order has no record", zap.String("index", path), zap.String("order_id", id))
					return nil
				}
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := slices.DeleteFunc(records, func(r *Record) bool { return r == nil })
	slices.SortStableFunc(out, func(a, b *Record) int {
		return b.UpdatedOn.Compare(a.UpdatedOn)
	})
	return out, nil
}
