package domain

import "github.com/shopspring/decimal"

// MoneyScale — количество знаков после запятой для денежных сумм (NUMERIC(12,2)).
const MoneyScale = 2

// DefaultMarkupPercentage — наценка dropshipping-товаров по умолчанию.
var DefaultMarkupPercentage = decimal.NewFromInt(30)

var hundred = decimal.NewFromInt(100)

// RoundMoney округляет сумму до копеек (half away from zero).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// LineTotal считает стоимость позиции: qty * price.
func LineTotal(qty int32, price decimal.Decimal) decimal.Decimal {
	return RoundMoney(price.Mul(decimal.NewFromInt32(qty)))
}

// ApplyMarkup возвращает base * (1 + markup/100), округлённую до копеек.
func ApplyMarkup(base, markupPercentage decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(markupPercentage.Div(hundred))
	return RoundMoney(base.Mul(factor))
}
