// Package api defines the JSON bodies exchanged with the storefront HTTP API.
//
// Every type encodes and decodes itself with jx, so the server and the
// client share one wire definition.
package api

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// CreateTransactionRequest is the body of POST /api/createTransaction.
type CreateTransactionRequest struct {
	Buyer   string
	OrderID string
	ItemID  string
}

// CreateTransactionResponse carries the base64 unsigned transaction.
type CreateTransactionResponse struct {
	Transaction string
}

// Product is a catalog listing entry.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
}

// Products is the body of GET /api/products.
type Products []Product

// FetchItemRequest is the body of POST /api/fetchItem.
type FetchItemRequest struct {
	ItemID string
}

// Item is the downloadable content of a purchased item.
type Item struct {
	ID       string
	Name     string
	Filename string
	Hash     string
}

// AddOrderRequest is the body of POST /api/addOrder.
type AddOrderRequest struct {
	Buyer     string
	OrderID   string
	ItemID    string
	Signature string
}

// StatusResponse acknowledges a write.
type StatusResponse struct {
	Status string
}

// PurchasedResponse is the body of GET /api/checkPurchased.
type PurchasedResponse struct {
	Purchased bool
}

// Order is a recorded order as returned to operators.
type Order struct {
	OrderID   string
	Buyer     string
	ItemID    string
	Amount    decimal.Decimal
	Signature string
	CreatedAt time.Time
}

// Message is the body of client error responses.
type Message struct {
	Message string
}

// Error is the body of server error responses.
type Error struct {
	Error string
}

// Encoder is implemented by every body type.
type Encoder interface {
	Encode(e *jx.Encoder)
}

// Decoder is implemented by every body type.
type Decoder interface {
	Decode(d *jx.Decoder) error
}

// Marshal encodes v to JSON.
func Marshal(v Encoder) []byte {
	var e jx.Encoder
	v.Encode(&e)
	return e.Bytes()
}

// Unmarshal decodes JSON data into v.
func Unmarshal(data []byte, v Decoder) error {
	return v.Decode(jx.DecodeBytes(data))
}

// str decodes a string field, treating null as empty.
func str(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func num(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

func field(e *jx.Encoder, name, value string) {
	e.FieldStart(name)
	e.Str(value)
}

func (r *CreateTransactionRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "buyer", r.Buyer)
	field(e, "orderID", r.OrderID)
	field(e, "itemID", r.ItemID)
	e.ObjEnd()
}

func (r *CreateTransactionRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "buyer":
			r.Buyer, err = str(d)
		case "orderID":
			r.OrderID, err = str(d)
		case "itemID":
			r.ItemID, err = str(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (r *CreateTransactionResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "transaction", r.Transaction)
	e.ObjEnd()
}

func (r *CreateTransactionResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "transaction" {
			return d.Skip()
		}
		var err error
		r.Transaction, err = str(d)
		return err
	})
}

func (p *Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "id", p.ID)
	field(e, "name", p.Name)
	field(e, "description", p.Description)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.String()))
	field(e, "imageUrl", p.ImageURL)
	e.ObjEnd()
}

func (p *Product) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = str(d)
		case "name":
			p.Name, err = str(d)
		case "description":
			p.Description, err = str(d)
		case "price":
			p.Price, err = num(d)
		case "imageUrl":
			p.ImageURL, err = str(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (ps Products) Encode(e *jx.Encoder) {
	e.ArrStart()
	for i := range ps {
		ps[i].Encode(e)
	}
	e.ArrEnd()
}

func (ps *Products) Decode(d *jx.Decoder) error {
	return d.Arr(func(d *jx.Decoder) error {
		var p Product
		if err := p.Decode(d); err != nil {
			return err
		}
		*ps = append(*ps, p)
		return nil
	})
}

func (r *FetchItemRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "itemID", r.ItemID)
	e.ObjEnd()
}

func (r *FetchItemRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "itemID" {
			return d.Skip()
		}
		var err error
		r.ItemID, err = str(d)
		return err
	})
}

func (it *Item) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "id", it.ID)
	field(e, "name", it.Name)
	field(e, "filename", it.Filename)
	field(e, "hash", it.Hash)
	e.ObjEnd()
}

func (it *Item) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = str(d)
		case "name":
			it.Name, err = str(d)
		case "filename":
			it.Filename, err = str(d)
		case "hash":
			it.Hash, err = str(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (r *AddOrderRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "buyer", r.Buyer)
	field(e, "orderID", r.OrderID)
	field(e, "itemID", r.ItemID)
	field(e, "signature", r.Signature)
	e.ObjEnd()
}

func (r *AddOrderRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "buyer":
			r.Buyer, err = str(d)
		case "orderID":
			r.OrderID, err = str(d)
		case "itemID":
			r.ItemID, err = str(d)
		case "signature":
			r.Signature, err = str(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (r *StatusResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "status", r.Status)
	e.ObjEnd()
}

func (r *StatusResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		r.Status, err = str(d)
		return err
	})
}

func (r *PurchasedResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("purchased")
	e.Bool(r.Purchased)
	e.ObjEnd()
}

func (r *PurchasedResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "purchased" {
			return d.Skip()
		}
		var err error
		r.Purchased, err = d.Bool()
		return err
	})
}

func (o *Order) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "orderID", o.OrderID)
	field(e, "buyer", o.Buyer)
	field(e, "itemID", o.ItemID)
	e.FieldStart("amount")
	e.Num(jx.Num(o.Amount.String()))
	field(e, "signature", o.Signature)
	field(e, "createdAt", o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func (o *Order) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderID":
			o.OrderID, err = str(d)
		case "buyer":
			o.Buyer, err = str(d)
		case "itemID":
			o.ItemID, err = str(d)
		case "amount":
			o.Amount, err = num(d)
		case "signature":
			o.Signature, err = str(d)
		case "createdAt":
			var s string
			if s, err = str(d); err == nil && s != "" {
				o.CreatedAt, err = time.Parse(time.RFC3339, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (m *Message) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "message", m.Message)
	e.ObjEnd()
}

func (m *Message) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "message" {
			return d.Skip()
		}
		var err error
		m.Message, err = str(d)
		return err
	})
}

func (r *Error) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "error", r.Error)
	e.ObjEnd()
}

func (r *Error) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		var err error
		r.Error, err = str(d)
		return err
	})
}
