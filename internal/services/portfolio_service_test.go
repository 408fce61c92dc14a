package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/store"
)

func TestPortfolioServiceBuyPersists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	// 7203 trades at 2850 in the catalog: 285000 + 275 commission
	res, err := env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 100})
	require.NoError(t, err)
	require.NotNil(t, res.Transaction)
	assert.Nil(t, res.Pending)
	assertDecimal(t, "714725", res.Portfolio.Cash)
	assertDecimal(t, "999725", res.Portfolio.TotalValue)

	view, err := env.portfolio.Get(ctx, userID)
	require.NoError(t, err)
	assertDecimal(t, "714725", view.Cash)
	require.Len(t, view.Positions, 1)
	assert.Equal(t, int64(100), view.Positions[0].Quantity)
	assert.Len(t, view.Transactions, 1)
	assert.Len(t, view.History, 2)
}

func TestPortfolioServiceRejectsUnknownInstrument(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t)

	_, err := env.portfolio.Buy(context.Background(), userID, TradeRequest{InstrumentID: "0000", Quantity: 1})
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestPortfolioServiceUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.portfolio.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPortfolioServiceTradesAtSessionPrices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	for i := 0; i < 3; i++ {
		_, err := env.market.Step(ctx, userID)
		require.NoError(t, err)
	}
	in, ok := env.market.Instrument(userID, "7203")
	require.True(t, ok)

	res, err := env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 1})
	require.NoError(t, err)
	assert.True(t, in.Price.Equal(res.Transaction.Price))
}

func TestPortfolioServiceRestingLimitOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	_, err := env.portfolio.Buy(ctx, userID, TradeRequest{
		InstrumentID: "7203", Quantity: 10, OrderType: models.OrderLimit, LimitPrice: decimal.NewFromInt(2000),
	})
	assert.ErrorIs(t, err, ErrLimitNotMet)

	res, err := env.portfolio.Buy(ctx, userID, TradeRequest{
		InstrumentID: "7203", Quantity: 10, OrderType: models.OrderLimit, LimitPrice: decimal.NewFromInt(2000), Rest: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Pending)
	assert.Nil(t, res.Transaction)

	orders, err := env.portfolio.PendingOrders(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	cheap := env.market.Instruments(userID)
	for i := range cheap {
		if cheap[i].ID == "7203" {
			cheap[i].Price = decimal.NewFromInt(1990)
		}
	}
	value, err := env.portfolio.OnTick(ctx, userID, cheap)
	require.NoError(t, err)

	view, err := env.portfolio.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, view.PendingOrders)
	require.Len(t, view.Positions, 1)
	// 20000 + 55 commission, filled at the limit
	assertDecimal(t, "979945", view.Cash)
	assertDecimal(t, "999845", value)
}

func TestPortfolioServiceCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	res, err := env.portfolio.Buy(ctx, userID, TradeRequest{
		InstrumentID: "7203", Quantity: 10, OrderType: models.OrderLimit, LimitPrice: decimal.NewFromInt(2000), Rest: true,
	})
	require.NoError(t, err)

	_, err = env.portfolio.CancelOrder(ctx, userID, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	cancelled, err := env.portfolio.CancelOrder(ctx, userID, res.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Pending.ID, cancelled.ID)

	orders, err := env.portfolio.PendingOrders(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPortfolioServiceSellAndTransactionsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	_, err := env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 100})
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	_, err = env.portfolio.Sell(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 40})
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	_, err = env.portfolio.Dividend(ctx, userID, "7203")
	require.NoError(t, err)

	txs, err := env.portfolio.Transactions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, models.TransactionDividend, txs[0].Type)
	assert.Equal(t, models.TransactionSell, txs[1].Type)
	assert.Equal(t, models.TransactionBuy, txs[2].Type)
	// 60 shares × 75
	assertDecimal(t, "4500", txs[0].Total)

	_, err = env.portfolio.Sell(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 61})
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestPortfolioServiceResetAndBroker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	_, err := env.portfolio.ChangeBroker(ctx, userID, "bank")
	assert.ErrorIs(t, err, ErrInvalidBroker)

	view, err := env.portfolio.ChangeBroker(ctx, userID, BrokerApp)
	require.NoError(t, err)
	assert.Equal(t, BrokerApp, view.BrokerType)
	assert.Len(t, view.History, 2)

	_, err = env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 10})
	require.NoError(t, err)

	view, err = env.portfolio.Reset(ctx, userID)
	require.NoError(t, err)
	assertDecimal(t, "1000000", view.Cash)
	assert.Equal(t, BrokerApp, view.BrokerType)
	assert.Empty(t, view.Positions)
	assert.Empty(t, view.Transactions)

	stored, err := env.portfolio.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, stored.Transactions)
	assert.Len(t, stored.History, 1)
}

func TestPortfolioServiceAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	_, err := env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 100})
	require.NoError(t, err)
	etf := env.instrument(t, userID, models.CategoryETF)
	_, err = env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: etf.ID, Quantity: 10})
	require.NoError(t, err)

	a, err := env.portfolio.Analytics(ctx, userID, false)
	require.NoError(t, err)
	assert.Greater(t, a.AssetAllocation.Stocks.Percentage, 0.0)
	assert.Greater(t, a.AssetAllocation.ETFs.Percentage, 0.0)
	assert.Equal(t, 0.0, a.AssetAllocation.Funds.Percentage)
	assert.Len(t, a.SectorAllocation, 2)
	assertDecimal(t, "0", a.RealizedTax.Total)
}

func TestPortfolioServiceSnapshotAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createUser(t)
	b := env.createUser(t)

	n, err := env.portfolio.SnapshotAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{a, b} {
		view, err := env.portfolio.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, view.History, 2)
	}
}

func TestSimulatorRecordsPortfolioHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	_, err := env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 100})
	require.NoError(t, err)

	state, err := env.market.Start(ctx, userID, SimulationSettings{Speed: SpeedSlow})
	require.NoError(t, err)
	env.market.Stop(userID)
	require.Len(t, state.History, 1)
	assertDecimal(t, "999725", state.History[0].Value)

	tick, err := env.market.Step(ctx, userID)
	require.NoError(t, err)

	view, err := env.portfolio.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, tick.Value.Equal(view.TotalValue))
	assert.Len(t, env.market.State(userID).History, 2)
}

func TestPortfolioServiceReadFailureLeavesStoredPortfolio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t)

	_, err := env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 100})
	require.NoError(t, err)
	res, err := env.portfolio.Buy(ctx, userID, TradeRequest{
		InstrumentID: "7203", Quantity: 10, OrderType: models.OrderLimit, LimitPrice: decimal.NewFromInt(2000), Rest: true,
	})
	require.NoError(t, err)
	orderID := res.Pending.ID

	before, err := env.store.Get(ctx, userID)
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{"buy", func() error {
			_, err := env.portfolio.Buy(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 1})
			return err
		}},
		{"sell", func() error {
			_, err := env.portfolio.Sell(ctx, userID, TradeRequest{InstrumentID: "7203", Quantity: 1})
			return err
		}},
		{"dividend", func() error {
			_, err := env.portfolio.Dividend(ctx, userID, "7203")
			return err
		}},
		{"reset", func() error {
			_, err := env.portfolio.Reset(ctx, userID)
			return err
		}},
		{"change broker", func() error {
			_, err := env.portfolio.ChangeBroker(ctx, userID, BrokerApp)
			return err
		}},
		{"cancel order", func() error {
			_, err := env.portfolio.CancelOrder(ctx, userID, orderID)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.flaky.failNextGet()
			require.Error(t, tt.run())

			after, err := env.store.Get(ctx, userID)
			require.NoError(t, err)
			assertDecimal(t, before.Portfolio.Cash.String(), after.Portfolio.Cash)
			assert.Len(t, after.Portfolio.Transactions, len(before.Portfolio.Transactions))
			assert.Len(t, after.Portfolio.Positions, len(before.Portfolio.Positions))
			assert.Len(t, after.Portfolio.PendingOrders, len(before.Portfolio.PendingOrders))
			assert.Len(t, after.Portfolio.History, len(before.Portfolio.History))
			assert.Equal(t, before.Portfolio.BrokerType, after.Portfolio.BrokerType)
		})
	}
}
