package features

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/storage/memory"
)

// flakyDocuments rejects writes to selected paths.
type flakyDocuments struct {
	*memory.Documents
	reject map[string]bool
}

func (f *flakyDocuments) Put(ctx context.Context, path string, doc []byte) error {
	if f.reject[path] {
		return errors.Errorf("write %s refused", path)
	}
	return f.Documents.Put(ctx, path, doc)
}

type draftTestContext struct {
	local   *memory.KV
	remote  *flakyDocuments
	orders  *order.Service
	machine *cart.Machine
	ids     func() string
	placed  *order.Record
	err     error
}

func (c *draftTestContext) reset() {
	*c = draftTestContext{
		local:  memory.NewKV(),
		remote: &flakyDocuments{Documents: memory.NewDocuments(), reject: map[string]bool{}},
	}
}

func (c *draftTestContext) load(ctx context.Context) error {
	svc, err := order.NewService(c.remote)
	if err != nil {
		return err
	}
	c.orders = svc
	c.machine, err = cart.New(ctx, c.local, svc, cart.WithIDGenerator(c.ids))
	return err
}

func (c *draftTestContext) aNewDraftWithOrderID(ctx context.Context, id string) error {
	n := 0
	c.ids = func() string {
		n++
		if n == 1 {
			return id
		}
		return fmt.Sprintf("%s-next-%d", id, n)
	}
	return c.load(ctx)
}

func (c *draftTestContext) userAlreadyHasOrders(ctx context.Context, user, ids string) error {
	ix := &order.Index{Orders: strings.Split(ids, ",")}
	return c.remote.Documents.Put(ctx, order.UserIndexPath(user), order.EncodeIndex(ix))
}

func (c *draftTestContext) theOrderStoreRejectsWritesTo(path string) error {
	c.remote.reject[path] = true
	return nil
}

func (c *draftTestContext) theOrderStoreAcceptsAllWrites() error {
	clear(c.remote.reject)
	return nil
}

func (c *draftTestContext) iAddProductWithQuantity(ctx context.Context, id string, qty int) error {
	return c.machine.AddOrUpdateItem(ctx, id, qty)
}

func (c *draftTestContext) iChangeTheQuantityOfProductBy(ctx context.Context, id string, delta int) error {
	return c.machine.ChangeQuantity(ctx, id, delta)
}

func (c *draftTestContext) iRemoveProduct(ctx context.Context, id string) error {
	return c.machine.RemoveItem(ctx, id)
}

func (c *draftTestContext) iSetDetailTo(ctx context.Context, key, value string) error {
	return c.machine.SetAdditionalDetail(ctx, key, value)
}

func (c *draftTestContext) theStorefrontIsReloaded(ctx context.Context) error {
	return c.load(ctx)
}

func (c *draftTestContext) iPlaceTheOrder(ctx context.Context) error {
	c.placed, c.err = c.machine.PlaceOrder(ctx)
	return nil
}

func (c *draftTestContext) theOrderIsAccepted() error {
	if c.err != nil {
		return fmt.Errorf("expected order to be placed, got %v", c.err)
	}
	return nil
}

func (c *draftTestContext) theOrderIsRejected() error {
	var submitErr *cart.SubmitError
	if !errors.As(c.err, &submitErr) {
		return fmt.Errorf("expected submit error, got %v", c.err)
	}
	return nil
}

func (c *draftTestContext) theQuantityOfProductIs(id string, want int) error {
	if got := c.machine.QuantityOf(id); got != want {
		return fmt.Errorf("quantity of %s: expected %d, got %d", id, want, got)
	}
	return nil
}

func (c *draftTestContext) productIsInTheCart(id string) error {
	if !c.machine.IsInCart(id) {
		return fmt.Errorf("expected %s in cart", id)
	}
	return nil
}

func (c *draftTestContext) productIsNotInTheCart(id string) error {
	if c.machine.IsInCart(id) {
		return fmt.Errorf("expected %s not in cart", id)
	}
	return nil
}

func (c *draftTestContext) theTotalQuantityIs(want int) error {
	if got := c.machine.TotalQuantity(); got != want {
		return fmt.Errorf("total quantity: expected %d, got %d", want, got)
	}
	return nil
}

func (c *draftTestContext) theCartHasLineItems(want int) error {
	if got := len(c.machine.Snapshot().Items); got != want {
		return fmt.Errorf("line items: expected %d, got %d", want, got)
	}
	return nil
}

func (c *draftTestContext) theOrderIDIs(want string) error {
	if got := c.machine.OrderID(); got != want {
		return fmt.Errorf("order id: expected %q, got %q", want, got)
	}
	return nil
}

func (c *draftTestContext) theOrderIDIsNot(unwanted string) error {
	if got := c.machine.OrderID(); got == unwanted || got == "" {
		return fmt.Errorf("order id: expected a new id, got %q", got)
	}
	return nil
}

func (c *draftTestContext) detailIs(key, want string) error {
	if got := c.machine.Snapshot().Details[key]; got != want {
		return fmt.Errorf("detail %s: expected %q, got %q", key, want, got)
	}
	return nil
}

func (c *draftTestContext) theOrderStoreHasOrderWithItemsInStatus(ctx context.Context, id string, qty int, status string) error {
	rec, err := c.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if got := rec.TotalQuantity(); got != qty {
		return fmt.Errorf("order %s quantity: expected %d, got %d", id, qty, got)
	}
	if string(rec.Status) != status {
		return fmt.Errorf("order %s status: expected %q, got %q", id, status, rec.Status)
	}
	return nil
}

func (c *draftTestContext) theTimelineOfOrderHasEntries(ctx context.Context, id string, want int) error {
	rec, err := c.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	entries := rec.Timeline.Entries()
	if len(entries) != want {
		return fmt.Errorf("timeline of %s: expected %d entries, got %d", id, want, len(entries))
	}
	if entries[0].Status != order.StatusPending {
		return fmt.Errorf("timeline of %s starts with %q", id, entries[0].Status)
	}
	return nil
}

func (c *draftTestContext) indexIs(ctx context.Context, path, want string) error {
	doc, ok, err := c.remote.Get(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no index at %s", path)
	}
	ix, err := order.DecodeIndex(doc)
	if err != nil {
		return err
	}
	if got := strings.Join(ix.Orders, ","); got != want {
		return fmt.Errorf("index %s: expected %q, got %q", path, want, got)
	}
	return nil
}

func (c *draftTestContext) theOrdersOfUserAre(ctx context.Context, user, want string) error {
	return c.indexIs(ctx, order.UserIndexPath(user), want)
}

func (c *draftTestContext) theOrdersOfCustomerAre(ctx context.Context, customer, want string) error {
	return c.indexIs(ctx, order.CustomerIndexPath(customer), want)
}

func (c *draftTestContext) theOrderStoreHasNoDocumentAt(ctx context.Context, path string) error {
	_, ok, err := c.remote.Get(ctx, path)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("unexpected document at %s", path)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &draftTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a new draft with order id "([^"]*)"$`, tc.aNewDraftWithOrderID)
	ctx.Step(`^user "([^"]*)" already has orders "([^"]*)"$`, tc.userAlreadyHasOrders)
	ctx.Step(`^the order store rejects writes to "([^"]*)"$`, tc.theOrderStoreRejectsWritesTo)

	// When steps
	ctx.Step(`^I add product "([^"]*)" with quantity (-?\d+)$`, tc.iAddProductWithQuantity)
	ctx.Step(`^I change the quantity of product "([^"]*)" by (-?\d+)$`, tc.iChangeTheQuantityOfProductBy)
	ctx.Step(`^I remove product "([^"]*)"$`, tc.iRemoveProduct)
	ctx.Step(`^I set detail "([^"]*)" to "([^"]*)"$`, tc.iSetDetailTo)
	ctx.Step(`^the storefront is reloaded$`, tc.theStorefrontIsReloaded)
	ctx.Step(`^I place the order$`, tc.iPlaceTheOrder)
	ctx.Step(`^the order store accepts all writes$`, tc.theOrderStoreAcceptsAllWrites)

	// Then steps
	ctx.Step(`^the order is accepted$`, tc.theOrderIsAccepted)
	ctx.Step(`^the order is rejected$`, tc.theOrderIsRejected)
	ctx.Step(`^the quantity of product "([^"]*)" is (\d+)$`, tc.theQuantityOfProductIs)
	ctx.Step(`^product "([^"]*)" is in the cart$`, tc.productIsInTheCart)
	ctx.Step(`^product "([^"]*)" is not in the cart$`, tc.productIsNotInTheCart)
	ctx.Step(`^the total quantity is (\d+)$`, tc.theTotalQuantityIs)
	ctx.Step(`^the cart has (\d+) line items$`, tc.theCartHasLineItems)
	ctx.Step(`^the order id is "([^"]*)"$`, tc.theOrderIDIs)
	ctx.Step(`^the order id is not "([^"]*)"$`, tc.theOrderIDIsNot)
	ctx.Step(`^detail "([^"]*)" is "([^"]*)"$`, tc.detailIs)
	ctx.Step(`^the order store has order "([^"]*)" with (\d+) items in status "([^"]*)"$`, tc.theOrderStoreHasOrderWithItemsInStatus)
	ctx.Step(`^the timeline of order "([^"]*)" has (\d+) entries$`, tc.theTimelineOfOrderHasEntries)
	ctx.Step(`^the orders of user "([^"]*)" are "([^"]*)"$`, tc.theOrdersOfUserAre)
	ctx.Step(`^the orders of customer "([^"]*)" are "([^"]*)"$`, tc.theOrdersOfCustomerAre)
	ctx.Step(`^the order store has no document at "([^"]*)"$`, tc.theOrderStoreHasNoDocumentAt)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"draft_order.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
