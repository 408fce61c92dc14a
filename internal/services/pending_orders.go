package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/souta-pqr/money-suppli/internal/models"
)

// PlaceRestingOrder keeps a limit order on the book until the market reaches
// it. Sell orders must be covered by the current holding.
func PlaceRestingOrder(p *models.Portfolio, side models.TransactionType, o Order, now time.Time) (models.PendingOrder, error) {
	if o.Quantity <= 0 {
		return models.PendingOrder{}, tradeError(ErrInvalidQuantity, "数量は1以上で入力してください")
	}
	if o.Type != models.OrderLimit {
		return models.PendingOrder{}, tradeError(ErrInvalidOrderType, "待機注文は指値注文のみ可能です")
	}
	if !o.LimitPrice.IsPositive() {
		return models.PendingOrder{}, tradeError(ErrInvalidLimitPrice, "指値を正しく入力してください")
	}

	switch side {
	case models.TransactionBuy:
	case models.TransactionSell:
		idx := findPosition(p.Positions, o.Instrument.ID)
		if idx < 0 {
			return models.PendingOrder{}, tradeError(ErrPositionNotFound, "%s を保有していません", instrumentLabel(o.Instrument))
		}
		if committed := pendingSellQuantity(p, o.Instrument.ID) + o.Quantity; committed > p.Positions[idx].Quantity {
			return models.PendingOrder{}, tradeError(ErrInsufficientShares,
				"保有数量が不足しています（保有: %d、売却予定: %d）", p.Positions[idx].Quantity, committed)
		}
	default:
		return models.PendingOrder{}, tradeError(ErrInvalidOrderType, "注文種別が不正です: %s", side)
	}

	order := models.PendingOrder{
		ID:             uuid.NewString(),
		Side:           side,
		InstrumentID:   o.Instrument.ID,
		InstrumentName: o.Instrument.Name,
		Quantity:       o.Quantity,
		LimitPrice:     o.LimitPrice,
		CreatedAt:      now,
	}
	p.PendingOrders = append(p.PendingOrders, order)
	return order, nil
}

func pendingSellQuantity(p *models.Portfolio, instrumentID string) int64 {
	var n int64
	for _, o := range p.PendingOrders {
		if o.Side == models.TransactionSell && o.InstrumentID == instrumentID {
			n += o.Quantity
		}
	}
	return n
}

// shouldFill reports whether price satisfies the order's limit.
func shouldFill(o models.PendingOrder, price decimal.Decimal) bool {
	if o.Side == models.TransactionSell {
		return price.GreaterThanOrEqual(o.LimitPrice)
	}
	return price.LessThanOrEqual(o.LimitPrice)
}

// PendingResult lists what happened to resting orders on one tick.
type PendingResult struct {
	Filled    []models.Transaction
	Cancelled []CancelledOrder
}

type CancelledOrder struct {
	Order  models.PendingOrder
	Reason error
}

func (r PendingResult) Changed() bool {
	return len(r.Filled) > 0 || len(r.Cancelled) > 0
}

// ExecutePendingOrders fills every resting order whose limit the given
// market satisfies, oldest first, through Buy and Sell. Orders that can no
// longer be executed (funds, shares, delisted instrument) are cancelled.
func ExecutePendingOrders(p *models.Portfolio, instruments []models.Instrument, now time.Time) PendingResult {
	var result PendingResult
	if len(p.PendingOrders) == 0 {
		return result
	}

	market := make(map[string]models.Instrument, len(instruments))
	for _, in := range instruments {
		market[in.ID] = in
	}

	orders := p.PendingOrders
	remaining := make([]models.PendingOrder, 0, len(orders))
	for _, po := range orders {
		in, ok := market[po.InstrumentID]
		if !ok {
			result.Cancelled = append(result.Cancelled, CancelledOrder{Order: po, Reason: ErrUnknownInstrument})
			continue
		}
		if !shouldFill(po, in.Price) {
			remaining = append(remaining, po)
			continue
		}

		o := Order{Instrument: in, Quantity: po.Quantity, Type: models.OrderLimit, LimitPrice: po.LimitPrice}
		var (
			tx  models.Transaction
			err error
		)
		if po.Side == models.TransactionSell {
			tx, err = Sell(p, o, now)
		} else {
			tx, err = Buy(p, o, now)
		}
		if err != nil {
			var te *TradeError
			if errors.As(err, &te) {
				err = te.Err
			}
			result.Cancelled = append(result.Cancelled, CancelledOrder{Order: po, Reason: err})
			continue
		}
		result.Filled = append(result.Filled, tx)
	}
	p.PendingOrders = remaining
	return result
}

// CancelPendingOrder removes a resting order.
func CancelPendingOrder(p *models.Portfolio, orderID string) (models.PendingOrder, error) {
	for i, o := range p.PendingOrders {
		if o.ID == orderID {
			p.PendingOrders = append(p.PendingOrders[:i], p.PendingOrders[i+1:]...)
			return o, nil
		}
	}
	return models.PendingOrder{}, tradeError(ErrOrderNotFound, "注文が見つかりません")
}
