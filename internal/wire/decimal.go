// Package wire кодирует ответы сервиса в protobuf-формат, совместимый с
// клиентами, которые ожидают java.math.BigDecimal.
package wire

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"
)

// ContentType — MIME-тип protobuf-ответов.
const ContentType = "application/x-protobuf"

const (
	bigDecimalScale     protowire.Number = 1
	bigDecimalPrecision protowire.Number = 2
	bigDecimalValue     protowire.Number = 3
)

// ErrMalformed возвращается при разборе некорректного сообщения.
var ErrMalformed = errors.New("malformed protobuf message")

// BigDecimal — wire-представление десятичного числа:
// Value содержит немасштабированное целое в big-endian дополнительном коде.
type BigDecimal struct {
	Scale     uint32
	Precision uint32
	Value     []byte
}

// FromDecimal переводит decimal в BigDecimal. Отрицательный масштаб
// нормализуется до нуля, так как поле scale беззнаковое.
func FromDecimal(d decimal.Decimal) BigDecimal {
	unscaled := new(big.Int).Set(d.Coefficient())
	scale := -d.Exponent()
	if scale < 0 {
		unscaled.Mul(unscaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-scale)), nil))
		scale = 0
	}

	return BigDecimal{
		Scale:     uint32(scale),
		Precision: precision(unscaled),
		Value:     twosComplement(unscaled),
	}
}

// Decimal восстанавливает значение.
func (b BigDecimal) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(fromTwosComplement(b.Value), -int32(b.Scale))
}

func precision(n *big.Int) uint32 {
	digits := len(new(big.Int).Abs(n).String())
	return uint32(digits)
}

// twosComplement возвращает минимальное big-endian представление со знаковым битом.
func twosComplement(n *big.Int) []byte {
	var bits int
	if n.Sign() >= 0 {
		bits = n.BitLen()
	} else {
		bits = new(big.Int).Sub(new(big.Int).Neg(n), big.NewInt(1)).BitLen()
	}
	size := bits/8 + 1

	v := new(big.Int).Set(n)
	if n.Sign() < 0 {
		v.Add(v, new(big.Int).Lsh(big.NewInt(1), uint(size*8)))
	}
	return v.FillBytes(make([]byte, size))
}

func fromTwosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}

// AppendBigDecimal дописывает поля BigDecimal в буфер.
func AppendBigDecimal(buf []byte, b BigDecimal) []byte {
	buf = appendUint(buf, bigDecimalScale, uint64(b.Scale))
	buf = appendUint(buf, bigDecimalPrecision, uint64(b.Precision))
	buf = protowire.AppendTag(buf, bigDecimalValue, protowire.BytesType)
	return protowire.AppendBytes(buf, b.Value)
}

// MarshalDecimal кодирует decimal как сообщение BigDecimal.
func MarshalDecimal(d decimal.Decimal) []byte {
	return AppendBigDecimal(nil, FromDecimal(d))
}

// UnmarshalBigDecimal разбирает сообщение BigDecimal.
func UnmarshalBigDecimal(data []byte) (BigDecimal, error) {
	var out BigDecimal
	err := walk(data, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == bigDecimalScale && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			out.Scale = uint32(v)
			return n, nil
		case num == bigDecimalPrecision && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			out.Precision = uint32(v)
			return n, nil
		case num == bigDecimalValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			out.Value = append([]byte(nil), v...)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	return out, err
}

// UnmarshalDecimal разбирает BigDecimal сразу в decimal.
func UnmarshalDecimal(data []byte) (decimal.Decimal, error) {
	b, err := UnmarshalBigDecimal(data)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return b.Decimal(), nil
}

// walk обходит поля сообщения; fn возвращает длину разобранного значения.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(m))
		}
		data = data[m:]
	}
	return nil
}

// proto3 не передаёт нулевые скаляры.
func appendUint(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendInt(buf []byte, num protowire.Number, v int64) []byte {
	return appendUint(buf, num, uint64(v))
}

func appendString(buf []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendString(buf, s)
}

func appendMessage(buf []byte, num protowire.Number, msg []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, msg)
}
