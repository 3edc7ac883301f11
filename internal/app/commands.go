package app

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
)

// Opener creates the runtime for a command invocation from the given
// config files.
type Opener func(ctx context.Context, configFiles []string) (*Runtime, error)

// ErrUnhealthy is returned by the doctor command when a check fails.
var ErrUnhealthy = errors.New("storefront is unhealthy")

type cli struct {
	open        Opener
	configFiles []string
	rt          *Runtime
}

func (c *cli) runtime(ctx context.Context) (*Runtime, error) {
	if c.rt != nil {
		return c.rt, nil
	}
	rt, err := c.open(ctx, c.configFiles)
	if err != nil {
		return nil, err
	}
	c.rt = rt
	return rt, nil
}

func (c *cli) machine(ctx context.Context) (*cart.Machine, error) {
	rt, err := c.runtime(ctx)
	if err != nil {
		return nil, err
	}
	return rt.Machine(ctx)
}

func (c *cli) close() {
	if c.rt != nil {
		c.rt.Close()
	}
}

func newRootCommand(open Opener) (*cobra.Command, *cli) {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Draft orders, order history and the product catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&c.configFiles, "config", nil, "Config files (default: storefront.yaml, /etc/storefront/config.yaml)")

	root.AddCommand(
		c.cartCommand(),
		c.orderCommand(),
		c.catalogCommand(),
		c.doctorCommand(),
	)
	return root, c
}

func (c *cli) cartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Edit the draft order",
	}

	var estimate bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the draft order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.cartShow(cmd, estimate)
		},
	}
	show.Flags().BoolVar(&estimate, "estimate", false, "Estimate the total from catalog price ranges")

	add := &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product or replace its quantity",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return errors.Wrapf(err, "parse quantity %q", args[1])
				}
				qty = n
			}
			m, err := c.machine(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.AddOrUpdateItem(cmd.Context(), args[0], qty); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s x%d\n", args[0], m.QuantityOf(args[0]))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.machine(cmd.Context())
			if err != nil {
				return err
			}
			return m.RemoveItem(cmd.Context(), args[0])
		},
	}

	change := &cobra.Command{
		Use:   "change <product-id> <delta>",
		Short: "Change the quantity of a product by delta",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrapf(err, "parse delta %q", args[1])
			}
			m, err := c.machine(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.ChangeQuantity(cmd.Context(), args[0], delta); err != nil {
				return err
			}
			if m.IsInCart(args[0]) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s x%d\n", args[0], m.QuantityOf(args[0]))
			}
			return nil
		},
	}
	// Negative deltas follow the product ID and must not be read as flags.
	change.Flags().SetInterspersed(false)

	detail := &cobra.Command{
		Use:   "detail <key> <value>",
		Short: "Set an additional detail of the draft",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.machine(cmd.Context())
			if err != nil {
				return err
			}
			return m.SetAdditionalDetail(cmd.Context(), args[0], args[1])
		},
	}

	discard := &cobra.Command{
		Use:   "discard",
		Short: "Drop the draft and start a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.machine(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.Discard(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "New draft %s\n", m.OrderID())
			return nil
		},
	}

	cmd.AddCommand(show, add, remove, change, detail, discard)
	return cmd
}

func (c *cli) cartShow(cmd *cobra.Command, estimate bool) error {
	ctx := cmd.Context()
	rt, err := c.runtime(ctx)
	if err != nil {
		return err
	}
	m, err := rt.Machine(ctx)
	if err != nil {
		return err
	}
	s := m.Snapshot()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Order %s (%s)\n", s.OrderID, m.Phase())
	if len(s.Items) == 0 {
		fmt.Fprintln(out, "Cart is empty")
	}

	var products map[string]catalog.Product
	if estimate {
		list, err := rt.Catalog().Products(ctx, false)
		if err != nil {
			return errors.Wrap(err, "load catalog")
		}
		products = make(map[string]catalog.Product, len(list))
		for _, p := range list {
			products[p.ID] = p
		}
	}

	if len(s.Items) > 0 {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PRODUCT\tQTY\tNAME\tPRICE")
		for _, it := range s.Items {
			p := products[it.ProductID]
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", it.ProductID, it.Quantity, orDash(p.Name), orDash(p.Price.String()))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Total quantity: %d\n", m.TotalQuantity())
	}
	writeDetails(out, s.Details)

	if estimate {
		quantities := make(map[string]int, len(s.Items))
		for _, it := range s.Items {
			quantities[it.ProductID] = it.Quantity
		}
		est := catalog.EstimateTotal(slices.Collect(maps.Values(products)), quantities)
		fmt.Fprintf(out, "Estimate: %s - %s\n", est.Min.StringFixed(2), est.Max.StringFixed(2))
		if len(est.Unpriced) > 0 {
			fmt.Fprintf(out, "Unpriced: %s\n", strings.Join(est.Unpriced, ", "))
		}
	}
	return nil
}

func (c *cli) orderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place and manage orders",
	}

	var customer, note string
	place := &cobra.Command{
		Use:   "place",
		Short: "Submit the draft as an order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.orderPlace(cmd, customer, note)
		},
	}
	place.Flags().StringVar(&customer, "customer", "", "Customer the order is placed for (required for salespeople)")
	place.Flags().StringVar(&note, "note", "", "Order note")

	show := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Print a submitted order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := rt.Orders().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeRecord(cmd.OutOrStdout(), rec)
		},
	}

	var user, byCustomer string
	list := &cobra.Command{
		Use:   "list",
		Short: "List orders of a user or a customer, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.orderList(cmd, user, byCustomer)
		},
	}
	list.Flags().StringVar(&user, "user", "", "User ID (default: the configured user)")
	list.Flags().StringVar(&byCustomer, "customer", "", "Customer ID")
	list.MarkFlagsMutuallyExclusive("user", "customer")

	var statusNote string
	status := &cobra.Command{
		Use:   "status <order-id> <pending|completed|cancelled>",
		Short: "Change the status of a submitted order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := order.ParseStatus(args[1])
			if err != nil {
				return err
			}
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			u := order.Update{Status: st, By: rt.Config().User.ID}
			if statusNote != "" {
				u.Details = map[string]string{order.DetailOrderNote: statusNote}
			}
			rec, err := rt.Orders().Update(cmd.Context(), args[0], u)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %s is %s\n", rec.OrderID, rec.Status)
			return nil
		},
	}
	status.Flags().StringVar(&statusNote, "note", "", "Replace the order note")

	cmd.AddCommand(place, show, list, status)
	return cmd
}

func (c *cli) orderPlace(cmd *cobra.Command, customer, note string) error {
	ctx := cmd.Context()
	rt, err := c.runtime(ctx)
	if err != nil {
		return err
	}
	m, err := rt.Machine(ctx)
	if err != nil {
		return err
	}
	if len(m.Snapshot().Items) == 0 {
		return cart.ErrEmptyCart
	}

	user := rt.Config().User
	if user.Role == RoleSalesperson && customer == "" {
		return errors.New("--customer is required for sales-assisted orders")
	}
	details := [][2]string{
		{order.DetailCustomerID, customer},
		{order.DetailOrderNote, note},
		{order.DetailCreatedBy, user.ID},
		{order.DetailUpdatedBy, user.ID},
		{order.DetailOrderedBy, user.Name},
		{order.DetailOrderType, user.OrderType()},
	}
	for _, kv := range details {
		if kv[1] == "" {
			continue
		}
		if err := m.SetAdditionalDetail(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}

	rec, err := m.PlaceOrder(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Placed order %s (%d items)\n", rec.OrderID, rec.TotalQuantity())
	return nil
}

func (c *cli) orderList(cmd *cobra.Command, user, customer string) error {
	ctx := cmd.Context()
	rt, err := c.runtime(ctx)
	if err != nil {
		return err
	}

	var records []*order.Record
	if customer != "" {
		records, err = rt.Orders().ListByCustomer(ctx, customer)
	} else {
		if user == "" {
			user = rt.Config().User.ID
		}
		if user == "" {
			return errors.New("user ID is required: pass --user or set STOREFRONT_USER_ID")
		}
		records, err = rt.Orders().ListByUser(ctx, user)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No orders")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tQTY\tCUSTOMER\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			rec.OrderID, rec.Status, rec.TotalQuantity(), orDash(rec.CustomerID()), formatTime(rec.UpdatedOn))
	}
	return tw.Flush()
}

func (c *cli) catalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the product catalog",
	}

	var refresh bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			products, err := rt.Catalog().Products(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBRAND\tPRICE\tIMAGES")
			for _, p := range products {
				cached := 0
				for _, u := range p.Images {
					if rt.Images().Cached(u) {
						cached++
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\n",
					p.ID, orDash(p.Name), orDash(p.Brand), orDash(p.Price.String()), cached, len(p.Images))
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&refresh, "refresh", false, "Fetch the catalog even when the cached copy is current")

	cmd.AddCommand(list)
	return cmd
}

func (c *cli) doctorCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local store, the remote store and the image cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			report := rt.Check(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				if _, err := out.Write(append(report.EncodeJSON(), '\n')); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CHECK\tSTATUS\tTIME")
				for _, r := range report.Results {
					status := "ok"
					if !r.OK() {
						status = r.Err.Error()
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, status, r.Duration.Round(time.Millisecond))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if !report.Healthy() {
				return ErrUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func writeRecord(out io.Writer, rec *order.Record) error {
	fmt.Fprintf(out, "Order %s\n", rec.OrderID)
	fmt.Fprintf(out, "Status: %s\n", rec.Status)
	fmt.Fprintf(out, "Created: %s\n", formatTime(rec.CreatedOn))
	fmt.Fprintf(out, "Updated: %s\n", formatTime(rec.UpdatedOn))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tQTY")
	for _, it := range rec.Items {
		fmt.Fprintf(tw, "%s\t%d\n", it.ProductID, it.Quantity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	writeDetails(out, rec.Details)

	fmt.Fprintln(out, "Timeline:")
	for _, e := range rec.Timeline.Entries() {
		fmt.Fprintf(out, "  %s  %s\n", formatTime(e.At), e.Status)
	}
	return nil
}

func writeDetails(out io.Writer, details map[string]string) {
	for _, k := range slices.Sorted(maps.Keys(details)) {
		fmt.Fprintf(out, "%s: %s\n", k, details[k])
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
