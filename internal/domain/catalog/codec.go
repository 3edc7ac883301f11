package catalog

import (
	"cmp"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeProducts serializes products as a JSON array.
func EncodeProducts(products []Product) []byte {
	var e jx.Encoder
	e.ArrStart()
	for i := range products {
		encodeProduct(&e, &products[i], true)
	}
	e.ArrEnd()
	return e.Bytes()
}

// EncodeProductMap serializes products as a JSON object keyed by product ID,
// the layout of the remote products collection.
func EncodeProductMap(products []Product) []byte {
	var e jx.Encoder
	e.ObjStart()
	for i := range products {
		e.FieldStart(products[i].ID)
		encodeProduct(&e, &products[i], false)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeProduct(e *jx.Encoder, p *Product, withID bool) {
	e.ObjStart()
	if withID {
		e.FieldStart("id")
		e.Str(p.ID)
	}
	str := func(name, v string) {
		if v != "" {
			e.FieldStart(name)
			e.Str(v)
		}
	}
	str("name", p.Name)
	str("aliasName", p.AliasName)
	str("brand", p.Brand)
	str("category", p.Category)
	str("partNo", p.PartNo)
	str("partDesc", p.PartDesc)
	str("HSNCode", p.HSNCode)
	if !p.MRP.IsZero() {
		e.FieldStart("MRP")
		e.Str(p.MRP.String())
	}
	str("priceRange", p.Price.String())
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(img)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// DecodeProducts parses a JSON array written by EncodeProducts or an object
// keyed by product ID. Object entries take their ID from the key. Products
// are returned sorted by ID.
func DecodeProducts(data []byte) ([]Product, error) {
	d := jx.DecodeBytes(data)
	var products []Product

	var err error
	switch d.Next() {
	case jx.Null:
		return nil, nil
	case jx.Array:
		err = d.Arr(func(d *jx.Decoder) error {
			p, err := decodeProduct(d)
			if err != nil {
				return err
			}
			products = append(products, p)
			return nil
		})
	case jx.Object:
		err = d.Obj(func(d *jx.Decoder, id string) error {
			if d.Next() != jx.Object {
				return d.Skip()
			}
			p, err := decodeProduct(d)
			if err != nil {
				return errors.Wrapf(err, "product %s", id)
			}
			p.ID = id
			products = append(products, p)
			return nil
		})
	default:
		err = errors.Errorf("unexpected %s", d.Next())
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}

	slices.SortFunc(products, func(a, b Product) int { return cmp.Compare(a.ID, b.ID) })
	return products, nil
}

func decodeProduct(d *jx.Decoder) (Product, error) {
	var p Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return decodeStr(d, &p.ID)
		case "name":
			return decodeStr(d, &p.Name)
		case "aliasName":
			return decodeStr(d, &p.AliasName)
		case "brand":
			return decodeStr(d, &p.Brand)
		case "category":
			return decodeStr(d, &p.Category)
		case "partNo":
			return decodeStr(d, &p.PartNo)
		case "partDesc":
			return decodeStr(d, &p.PartDesc)
		case "HSNCode":
			return decodeStr(d, &p.HSNCode)
		case "MRP":
			v, err := decodeDecimal(d)
			p.MRP = v
			return err
		case "priceRange":
			var s string
			if err := decodeStr(d, &s); err != nil {
				return err
			}
			r, err := ParsePriceRange(s)
			p.Price = r
			return err
		case "images":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				if err != nil {
					return err
				}
				p.Images = append(p.Images, s)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return p, err
}

// decodeStr reads a string, tolerating null and numbers the admin grid
// sometimes stores for codes.
func decodeStr(d *jx.Decoder, dst *string) error {
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.Number:
		n, err := d.Num()
		*dst = n.String()
		return err
	default:
		v, err := d.Str()
		*dst = v
		return err
	}
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var s string
	if err := decodeStr(d, &s); err != nil {
		return decimal.Zero, err
	}
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %q", s)
	}
	return v, nil
}
