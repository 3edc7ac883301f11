package order

import (
	"slices"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// TimeLayout is the ISO-8601 layout of createdOn/updatedOn.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// EncodeRecord serializes r into its stored JSON form.
func EncodeRecord(r *Record) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("orderId")
	e.Str(r.OrderID)

	e.FieldStart("orderWorkList")
	e.ObjStart()
	e.FieldStart(r.OrderID)
	EncodeItems(&e, r.Items)
	e.ObjEnd()

	e.FieldStart("additionalDetails")
	EncodeDetails(&e, r.Details)

	e.FieldStart("status")
	e.Str(string(r.Status))

	e.FieldStart("createdOn")
	e.Str(r.CreatedOn.UTC().Format(TimeLayout))
	e.FieldStart("updatedOn")
	e.Str(r.UpdatedOn.UTC().Format(TimeLayout))

	e.FieldStart("timeline")
	e.ObjStart()
	for _, k := range sortedKeys(r.Timeline) {
		e.FieldStart(strconv.FormatInt(k, 10))
		e.Str(string(r.Timeline[k]))
	}
	e.ObjEnd()

	e.ObjEnd()
	return e.Bytes()
}

// DecodeRecord parses a stored order record.
func DecodeRecord(data []byte) (*Record, error) {
	var (
		r        = &Record{Details: map[string]string{}, Timeline: Timeline{}}
		workList = map[string][]LineItem{}
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "orderId":
			v, err := d.Str()
			r.OrderID = v
			return err
		case "orderWorkList":
			return d.Obj(func(d *jx.Decoder, id string) error {
				items, err := DecodeItems(d)
				workList[id] = items
				return err
			})
		case "additionalDetails":
			details, err := DecodeDetails(d)
			r.Details = details
			return err
		case "status":
			v, err := d.Str()
			r.Status = Status(v)
			return err
		case "createdOn":
			t, err := decodeTime(d)
			r.CreatedOn = t
			return err
		case "updatedOn":
			t, err := decodeTime(d)
			r.UpdatedOn = t
			return err
		case "timeline":
			return d.Obj(func(d *jx.Decoder, k string) error {
				sec, err := strconv.ParseInt(k, 10, 64)
				if err != nil {
					return errors.Wrapf(err, "timeline key %q", k)
				}
				v, err := d.Str()
				if err != nil {
					return err
				}
				r.Timeline[sec] = Status(v)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order record")
	}

	r.Items = workList[r.OrderID]
	if r.Status == "" {
		if latest, ok := r.Timeline.Latest(); ok {
			r.Status = latest.Status
		}
	}
	return r, nil
}

// EncodeIndex serializes an order index document.
func EncodeIndex(ix *Index) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for _, id := range ix.Orders {
		e.Str(id)
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

// DecodeIndex parses an order index document.
func DecodeIndex(data []byte) (*Index, error) {
	ix := &Index{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "orders" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.Arr(func(d *jx.Decoder) error {
			id, err := d.Str()
			if err != nil {
				return err
			}
			ix.Orders = append(ix.Orders, id)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order index")
	}
	return ix, nil
}

// EncodeItems writes line items as a JSON array of {productId, quantity}.
func EncodeItems(e *jx.Encoder, items []LineItem) {
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// DecodeItems reads a JSON array written by EncodeItems.
func DecodeItems(d *jx.Decoder) ([]LineItem, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var it LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "productId":
				v, err := d.Str()
				it.ProductID = v
				return err
			case "quantity":
				v, err := d.Int()
				it.Quantity = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// EncodeDetails writes details as a JSON object with sorted keys.
func EncodeDetails(e *jx.Encoder, details map[string]string) {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.Str(details[k])
	}
	e.ObjEnd()
}

// DecodeDetails reads a JSON object of string values. Non-string values are
// ignored.
func DecodeDetails(d *jx.Decoder) (map[string]string, error) {
	details := map[string]string{}
	if d.Next() == jx.Null {
		return details, d.Null()
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		details[key] = v
		return err
	})
	return details, err
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse time %q", s)
	}
	return t, nil
}

func sortedKeys(t Timeline) []int64 {
	keys := make([]int64, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
