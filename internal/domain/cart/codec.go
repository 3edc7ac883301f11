package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// EncodeState serializes the draft in the layout the web storefront keeps in
// local storage: items are nested under the order ID in orderWorkList.
func EncodeState(s State) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(s.OrderID)
	e.FieldStart("orderWorkList")
	e.ObjStart()
	if s.OrderID != "" {
		e.FieldStart(s.OrderID)
		order.EncodeItems(&e, s.Items)
	}
	e.ObjEnd()
	e.FieldStart("additionalDetails")
	order.EncodeDetails(&e, s.Details)
	e.ObjEnd()
	return e.Bytes()
}

// DecodeState parses a draft written by EncodeState.
//
// Items listed under other order IDs are folded into the draft, last one
// wins per product, the same way a reload replays them.
func DecodeState(data []byte) (State, error) {
	var (
		s       = State{Details: map[string]string{}}
		current []LineItem
		others  []LineItem
	)
	lists := map[string][]LineItem{}
	var listOrder []string

	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "orderId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			s.OrderID = v
			return err
		case "orderWorkList":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Obj(func(d *jx.Decoder, id string) error {
				items, err := order.DecodeItems(d)
				if err != nil {
					return err
				}
				lists[id] = items
				listOrder = append(listOrder, id)
				return nil
			})
		case "additionalDetails":
			details, err := order.DecodeDetails(d)
			s.Details = details
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return State{}, errors.Wrap(err, "decode draft")
	}

	for _, id := range listOrder {
		if id == s.OrderID {
			current = lists[id]
			continue
		}
		others = append(others, lists[id]...)
	}

	for _, it := range append(others, current...) {
		if it.ProductID == "" {
			continue
		}
		s = Reduce(s, AddItem(it))
	}
	return s, nil
}
