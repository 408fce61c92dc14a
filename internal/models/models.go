package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryStock Category = "stock"
	CategoryETF   Category = "etf"
	CategoryFund  Category = "fund"
)

type TransactionType string

const (
	TransactionBuy      TransactionType = "buy"
	TransactionSell     TransactionType = "sell"
	TransactionDividend TransactionType = "dividend"
)

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Instrument is a tradable stock, ETF or fund of the mock market.
type Instrument struct {
	ID               string          `bson:"id" json:"id"`
	Name             string          `bson:"name" json:"name"`
	Category         Category        `bson:"category" json:"category"`
	Sector           string          `bson:"sector" json:"sector"`
	Price            decimal.Decimal `bson:"price" json:"price"`
	Change           float64         `bson:"change" json:"change"` // percent, last tick
	DividendPerShare decimal.Decimal `bson:"dividendPerShare" json:"dividendPerShare"`
}

type Portfolio struct {
	Cash         decimal.Decimal `bson:"cash" json:"cash"`
	BrokerType   string          `bson:"brokerType" json:"brokerType"`
	Positions    []Position      `bson:"positions" json:"positions"`
	Transactions []Transaction   `bson:"transactions" json:"transactions"`
	History      []HistoryPoint  `bson:"history" json:"history"`
	// PendingOrders are resting limit orders waiting for the market.
	PendingOrders []PendingOrder `bson:"pendingOrders" json:"pendingOrders"`
}

// Position is a holding. Price is the last known market price and
// AveragePrice the fee-inclusive average cost.
type Position struct {
	InstrumentID string          `bson:"instrumentId" json:"instrumentId"`
	Name         string          `bson:"name" json:"name"`
	Category     Category        `bson:"category" json:"category"`
	Sector       string          `bson:"sector" json:"sector"`
	Quantity     int64           `bson:"quantity" json:"quantity"`
	AveragePrice decimal.Decimal `bson:"averagePrice" json:"averagePrice"`
	Price        decimal.Decimal `bson:"price" json:"price"`
	PurchaseDate time.Time       `bson:"purchaseDate" json:"purchaseDate"`
}

// MarketValue is price × quantity.
func (p Position) MarketValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(p.Quantity))
}

// Transaction is an immutable ledger record.
//
// Value is the gross amount (price × quantity, or the dividend amount).
// Total is what moved in cash: value + commission for buys, value −
// commission for sells, the dividend amount for dividends.
type Transaction struct {
	ID             string          `bson:"id" json:"id"`
	Type           TransactionType `bson:"type" json:"type"`
	InstrumentID   string          `bson:"instrumentId" json:"instrumentId"`
	InstrumentName string          `bson:"instrumentName" json:"instrumentName"`
	Quantity       int64           `bson:"quantity" json:"quantity"`
	Price          decimal.Decimal `bson:"price" json:"price"`
	Commission     decimal.Decimal `bson:"commission" json:"commission"`
	Value          decimal.Decimal `bson:"value" json:"value"`
	Total          decimal.Decimal `bson:"total" json:"total"`
	PerShare       decimal.Decimal `bson:"perShare" json:"perShare"`
	OrderType      OrderType       `bson:"orderType,omitempty" json:"orderType,omitempty"`
	Date           time.Time       `bson:"date" json:"date"`
}

// PendingOrder is a limit order kept until the simulated price reaches it.
type PendingOrder struct {
	ID             string          `bson:"id" json:"id"`
	Side           TransactionType `bson:"side" json:"side"`
	InstrumentID   string          `bson:"instrumentId" json:"instrumentId"`
	InstrumentName string          `bson:"instrumentName" json:"instrumentName"`
	Quantity       int64           `bson:"quantity" json:"quantity"`
	LimitPrice     decimal.Decimal `bson:"limitPrice" json:"limitPrice"`
	CreatedAt      time.Time       `bson:"createdAt" json:"createdAt"`
}

type HistoryPoint struct {
	Date  time.Time       `bson:"date" json:"date"`
	Value decimal.Decimal `bson:"value" json:"value"`
}

// MarketEvent is a sector-scoped news item produced by the simulator.
type MarketEvent struct {
	Title   string    `json:"title"`
	Impact  float64   `json:"impact"`
	Sectors []string  `json:"sectors"`
	Date    time.Time `json:"date"`
	Read    bool      `json:"read"`
}

// MarketTick is pushed to a user's websocket clients after every simulated step.
type MarketTick struct {
	UserID      string          `json:"-"`
	Date        time.Time       `json:"date"`
	Instruments []Instrument    `json:"instruments"`
	Event       *MarketEvent    `json:"event,omitempty"`
	Value       decimal.Decimal `json:"portfolioValue"`
}
