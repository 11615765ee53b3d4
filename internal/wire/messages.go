package wire

import (
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

// SalePrice описывает цену продажи товара.
type SalePrice struct {
	PriceItemID int64
	ProductID   int64
	Price       decimal.Decimal
}

// MarshalSalePrice кодирует SalePrice {price_item_id=1, product_id=2, price=3}.
func MarshalSalePrice(p SalePrice) []byte {
	var buf []byte
	buf = appendInt(buf, 1, p.PriceItemID)
	buf = appendInt(buf, 2, p.ProductID)
	return appendMessage(buf, 3, MarshalDecimal(p.Price))
}

// UnmarshalSalePrice разбирает SalePrice.
func UnmarshalSalePrice(data []byte) (SalePrice, error) {
	var out SalePrice
	err := walk(data, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			out.PriceItemID = int64(v)
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			out.ProductID = int64(v)
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			price, err := UnmarshalDecimal(v)
			out.Price = price
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	return out, err
}

// MarshalSalePriceList кодирует SalePriceList {repeated SalePrice items = 1}.
func MarshalSalePriceList(items []SalePrice) []byte {
	var buf []byte
	for _, item := range items {
		buf = appendMessage(buf, 1, MarshalSalePrice(item))
	}
	return buf
}

// UnmarshalSalePriceList разбирает SalePriceList.
func UnmarshalSalePriceList(data []byte) ([]SalePrice, error) {
	items := make([]SalePrice, 0)
	err := walk(data, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
		v, n := protowire.ConsumeBytes(field)
		if n < 0 {
			return n, nil
		}
		item, err := UnmarshalSalePrice(v)
		items = append(items, item)
		return n, err
	})
	return items, err
}

func marshalInvoiceLine(item domain.LineItem) []byte {
	var buf []byte
	buf = appendInt(buf, 1, item.PriceItemID)
	buf = appendString(buf, 2, item.Name)
	buf = appendMessage(buf, 3, MarshalDecimal(item.UnitPrice))
	buf = appendInt(buf, 4, int64(item.Quantity))
	return appendInt(buf, 5, item.ProductID)
}

func unmarshalInvoiceLine(data []byte) (domain.LineItem, error) {
	var out domain.LineItem
	err := walk(data, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			out.PriceItemID = int64(v)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			out.Name = v
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			price, err := UnmarshalDecimal(v)
			out.UnitPrice = price
			return n, err
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			out.Quantity = int32(v)
			return n, nil
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			out.ProductID = int64(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	return out, err
}

// MarshalInvoiceDetails кодирует накладную вместе с позициями.
// Время передаётся в миллисекундах Unix.
func MarshalInvoiceDetails(inv domain.Invoice) []byte {
	var buf []byte
	buf = appendInt(buf, 1, inv.ID)
	buf = appendInt(buf, 2, inv.OrderID)
	buf = appendString(buf, 3, inv.InvoiceNumber)
	buf = appendString(buf, 4, string(inv.Type))
	buf = appendString(buf, 5, string(inv.Status))
	buf = appendMessage(buf, 6, MarshalDecimal(inv.Total))
	for _, item := range inv.LineItems {
		buf = appendMessage(buf, 7, marshalInvoiceLine(item))
	}
	buf = appendInt(buf, 8, unixMilli(inv.CreatedAt))
	return appendInt(buf, 9, unixMilli(inv.ExpiresAt))
}

// UnmarshalInvoiceDetails разбирает InvoiceDetails. Version и UpdatedAt по сети не передаются.
func UnmarshalInvoiceDetails(data []byte) (domain.Invoice, error) {
	var out domain.Invoice
	err := walk(data, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case typ == protowire.VarintType && (num == 1 || num == 2 || num == 8 || num == 9):
			v, n := protowire.ConsumeVarint(field)
			switch num {
			case 1:
				out.ID = int64(v)
			case 2:
				out.OrderID = int64(v)
			case 8:
				out.CreatedAt = time.UnixMilli(int64(v)).UTC()
			case 9:
				out.ExpiresAt = time.UnixMilli(int64(v)).UTC()
			}
			return n, nil
		case typ == protowire.BytesType && (num == 3 || num == 4 || num == 5):
			v, n := protowire.ConsumeString(field)
			switch num {
			case 3:
				out.InvoiceNumber = v
			case 4:
				out.Type = domain.InvoiceType(v)
			case 5:
				out.Status = domain.InvoiceStatus(v)
			}
			return n, nil
		case typ == protowire.BytesType && num == 6:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			total, err := UnmarshalDecimal(v)
			out.Total = total
			return n, err
		case typ == protowire.BytesType && num == 7:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			line, err := unmarshalInvoiceLine(v)
			out.LineItems = append(out.LineItems, line)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	return out, err
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
