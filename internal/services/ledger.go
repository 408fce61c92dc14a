package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/souta-pqr/money-suppli/internal/models"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidOrderType   = errors.New("invalid order type")
	ErrInvalidLimitPrice  = errors.New("limit price must be positive")
	ErrInvalidBroker      = errors.New("invalid broker type")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrPositionNotFound   = errors.New("position not found")
	ErrLimitNotMet        = errors.New("limit price not reached")
	ErrNoDividend         = errors.New("instrument pays no dividend")
	ErrOrderNotFound      = errors.New("order not found")
)

// TradeError wraps a ledger sentinel error with a message for the user.
type TradeError struct {
	Err     error
	Message string
}

func (e *TradeError) Error() string { return e.Message }

func (e *TradeError) Unwrap() error { return e.Err }

func tradeError(err error, format string, args ...interface{}) *TradeError {
	return &TradeError{Err: err, Message: fmt.Sprintf(format, args...)}
}

// Order describes a buy or sell request against an instrument's current
// market price. LimitPrice is only read for limit orders.
type Order struct {
	Instrument models.Instrument
	Quantity   int64
	Type       models.OrderType
	LimitPrice decimal.Decimal
}

// NewPortfolio returns a fresh portfolio holding only cash, with a single
// history point at the initial value.
func NewPortfolio(initialCash decimal.Decimal, broker string, now time.Time) models.Portfolio {
	return models.Portfolio{
		Cash:          initialCash,
		BrokerType:    broker,
		Positions:     []models.Position{},
		Transactions:  []models.Transaction{},
		PendingOrders: []models.PendingOrder{},
		History:       []models.HistoryPoint{{Date: now, Value: initialCash}},
	}
}

// TotalValue is cash plus the market value of every position.
func TotalValue(p models.Portfolio) decimal.Decimal {
	total := p.Cash
	for _, pos := range p.Positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

// fillPrice returns the execution price for o, or ErrLimitNotMet when the
// market has not reached the limit. Buys need market ≤ limit, sells need
// market ≥ limit; limit orders fill at the limit price.
func fillPrice(o Order, side models.TransactionType) (decimal.Decimal, error) {
	switch o.Type {
	case models.OrderMarket, "":
		return o.Instrument.Price, nil
	case models.OrderLimit:
	default:
		return decimal.Zero, tradeError(ErrInvalidOrderType, "注文種別が不正です: %s", o.Type)
	}

	if !o.LimitPrice.IsPositive() {
		return decimal.Zero, tradeError(ErrInvalidLimitPrice, "指値を正しく入力してください")
	}
	market := o.Instrument.Price
	if side == models.TransactionBuy && market.GreaterThan(o.LimitPrice) {
		return decimal.Zero, tradeError(ErrLimitNotMet,
			"現在価格 %s が指値 %s を上回っているため買い注文は約定しません",
			FormatYen(market), FormatYen(o.LimitPrice))
	}
	if side == models.TransactionSell && market.LessThan(o.LimitPrice) {
		return decimal.Zero, tradeError(ErrLimitNotMet,
			"現在価格 %s が指値 %s を下回っているため売り注文は約定しません",
			FormatYen(market), FormatYen(o.LimitPrice))
	}
	return o.LimitPrice, nil
}

// Buy executes o against the portfolio. Cash decreases by price × quantity
// plus commission and the position's average cost becomes the fee-inclusive
// weighted mean of the old and new lots. Nothing changes on error.
func Buy(p *models.Portfolio, o Order, now time.Time) (models.Transaction, error) {
	if o.Quantity <= 0 {
		return models.Transaction{}, tradeError(ErrInvalidQuantity, "数量は1以上で入力してください")
	}
	price, err := fillPrice(o, models.TransactionBuy)
	if err != nil {
		return models.Transaction{}, err
	}

	qty := decimal.NewFromInt(o.Quantity)
	value := price.Mul(qty)
	commission := CalculateCommission(value, p.BrokerType)
	total := value.Add(commission)
	if p.Cash.LessThan(total) {
		return models.Transaction{}, tradeError(ErrInsufficientFunds,
			"資金が不足しています（必要額: %s、現金残高: %s）", FormatYen(total), FormatYen(p.Cash))
	}

	p.Cash = p.Cash.Sub(total)

	idx := findPosition(p.Positions, o.Instrument.ID)
	if idx < 0 {
		p.Positions = append(p.Positions, models.Position{
			InstrumentID: o.Instrument.ID,
			Name:         o.Instrument.Name,
			Category:     o.Instrument.Category,
			Sector:       o.Instrument.Sector,
			Quantity:     o.Quantity,
			AveragePrice: total.Div(qty),
			Price:        o.Instrument.Price,
			PurchaseDate: now,
		})
	} else {
		pos := &p.Positions[idx]
		held := decimal.NewFromInt(pos.Quantity)
		cost := pos.AveragePrice.Mul(held).Add(total)
		pos.Quantity += o.Quantity
		pos.AveragePrice = cost.Div(decimal.NewFromInt(pos.Quantity))
		pos.Price = o.Instrument.Price
	}

	tx := models.Transaction{
		ID:             uuid.NewString(),
		Type:           models.TransactionBuy,
		InstrumentID:   o.Instrument.ID,
		InstrumentName: o.Instrument.Name,
		Quantity:       o.Quantity,
		Price:          price,
		Commission:     commission,
		Value:          value,
		Total:          total,
		OrderType:      orderTypeOrMarket(o.Type),
		Date:           now,
	}
	p.Transactions = append(p.Transactions, tx)
	recordHistory(p, now)
	return tx, nil
}

// Sell executes o against an existing position. Cash increases by the
// proceeds less commission; the average cost is left unchanged and a
// position sold in full is removed.
func Sell(p *models.Portfolio, o Order, now time.Time) (models.Transaction, error) {
	if o.Quantity <= 0 {
		return models.Transaction{}, tradeError(ErrInvalidQuantity, "数量は1以上で入力してください")
	}
	idx := findPosition(p.Positions, o.Instrument.ID)
	if idx < 0 {
		return models.Transaction{}, tradeError(ErrPositionNotFound, "%s を保有していません", instrumentLabel(o.Instrument))
	}
	pos := p.Positions[idx]
	if o.Quantity > pos.Quantity {
		return models.Transaction{}, tradeError(ErrInsufficientShares,
			"保有数量が不足しています（保有: %d、売却: %d）", pos.Quantity, o.Quantity)
	}
	price, err := fillPrice(o, models.TransactionSell)
	if err != nil {
		return models.Transaction{}, err
	}

	value := price.Mul(decimal.NewFromInt(o.Quantity))
	commission := CalculateCommission(value, p.BrokerType)
	proceeds := value.Sub(commission)

	p.Cash = p.Cash.Add(proceeds)
	if o.Quantity == pos.Quantity {
		p.Positions = append(p.Positions[:idx], p.Positions[idx+1:]...)
	} else {
		p.Positions[idx].Quantity -= o.Quantity
		p.Positions[idx].Price = o.Instrument.Price
	}

	tx := models.Transaction{
		ID:             uuid.NewString(),
		Type:           models.TransactionSell,
		InstrumentID:   o.Instrument.ID,
		InstrumentName: pos.Name,
		Quantity:       o.Quantity,
		Price:          price,
		Commission:     commission,
		Value:          value,
		Total:          proceeds,
		OrderType:      orderTypeOrMarket(o.Type),
		Date:           now,
	}
	p.Transactions = append(p.Transactions, tx)
	recordHistory(p, now)
	return tx, nil
}

// ReceiveDividend credits quantity × perShare for a held position.
func ReceiveDividend(p *models.Portfolio, instrumentID string, perShare decimal.Decimal, now time.Time) (models.Transaction, error) {
	idx := findPosition(p.Positions, instrumentID)
	if idx < 0 {
		return models.Transaction{}, tradeError(ErrPositionNotFound, "%s を保有していません", instrumentID)
	}
	if !perShare.IsPositive() {
		return models.Transaction{}, tradeError(ErrNoDividend, "この銘柄には配当がありません")
	}

	pos := p.Positions[idx]
	amount := perShare.Mul(decimal.NewFromInt(pos.Quantity))
	p.Cash = p.Cash.Add(amount)

	tx := models.Transaction{
		ID:             uuid.NewString(),
		Type:           models.TransactionDividend,
		InstrumentID:   pos.InstrumentID,
		InstrumentName: pos.Name,
		Quantity:       pos.Quantity,
		Price:          perShare,
		Commission:     decimal.Zero,
		Value:          amount,
		Total:          amount,
		PerShare:       perShare,
		Date:           now,
	}
	p.Transactions = append(p.Transactions, tx)
	recordHistory(p, now)
	return tx, nil
}

// MarkToMarket updates position prices from prices. Instruments missing
// from the map keep their last price. It does not record history.
func MarkToMarket(p *models.Portfolio, prices map[string]decimal.Decimal) {
	for i := range p.Positions {
		if price, ok := prices[p.Positions[i].InstrumentID]; ok {
			p.Positions[i].Price = price
		}
	}
}

// ResetPortfolio discards every position, transaction and pending order. The
// broker choice is kept.
func ResetPortfolio(p *models.Portfolio, initialCash decimal.Decimal, now time.Time) {
	broker := p.BrokerType
	*p = NewPortfolio(initialCash, broker, now)
}

// ChangeBroker switches the fee schedule used by later trades and records a
// history point.
func ChangeBroker(p *models.Portfolio, broker string, now time.Time) error {
	if !ValidBroker(broker) {
		return tradeError(ErrInvalidBroker, "証券会社の種類が不正です: %s", broker)
	}
	p.BrokerType = broker
	recordHistory(p, now)
	return nil
}

func recordHistory(p *models.Portfolio, now time.Time) {
	p.History = append(p.History, models.HistoryPoint{Date: now, Value: TotalValue(*p)})
}

func findPosition(positions []models.Position, instrumentID string) int {
	for i, pos := range positions {
		if pos.InstrumentID == instrumentID {
			return i
		}
	}
	return -1
}

func orderTypeOrMarket(t models.OrderType) models.OrderType {
	if t == "" {
		return models.OrderMarket
	}
	return t
}

func instrumentLabel(in models.Instrument) string {
	if in.Name != "" {
		return in.Name
	}
	return in.ID
}
