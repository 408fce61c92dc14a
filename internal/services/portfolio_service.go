package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/store"
)

// Market is the per-user price source the ledger trades against.
type Market interface {
	Instruments(userID string) []models.Instrument
	Instrument(userID, instrumentID string) (models.Instrument, bool)
}

// PortfolioService applies ledger operations to stored portfolios. Every
// operation on one user runs under that user's lock.
type PortfolioService struct {
	users  *UserService
	store  store.UserStore
	market Market
	locks  userLocks
	now    func() time.Time
	log    *logrus.Logger
}

func NewPortfolioService(users *UserService, st store.UserStore, market Market, log *logrus.Logger) *PortfolioService {
	return &PortfolioService{
		users:  users,
		store:  st,
		market: market,
		now:    time.Now,
		log:    log,
	}
}

// TradeRequest is a buy or sell as submitted by a user.
type TradeRequest struct {
	InstrumentID string
	Quantity     int64
	OrderType    models.OrderType
	LimitPrice   decimal.Decimal
	// Rest keeps an unfilled limit order on the book instead of rejecting it.
	Rest bool
}

// TradeResult carries either the executed transaction or the resting order.
type TradeResult struct {
	Transaction *models.Transaction  `json:"transaction,omitempty"`
	Pending     *models.PendingOrder `json:"pendingOrder,omitempty"`
	Portfolio   PortfolioView        `json:"portfolio"`
}

// PortfolioView is a portfolio valued at the user's current market prices.
type PortfolioView struct {
	models.Portfolio
	TotalValue  decimal.Decimal `json:"totalValue"`
	Performance Performance     `json:"performance"`
	Realized    ProfitLoss      `json:"realizedProfitLoss"`
	Unrealized  ProfitLoss      `json:"unrealizedProfitLoss"`
}

func (s *PortfolioService) view(userID string, p models.Portfolio) PortfolioView {
	MarkToMarket(&p, priceMap(s.market.Instruments(userID)))
	total := TotalValue(p)
	return PortfolioView{
		Portfolio:   p,
		TotalValue:  total,
		Performance: CalculatePerformance(p.History, total),
		Realized:    CalculateRealizedProfitLoss(p.Transactions),
		Unrealized:  CalculateUnrealizedProfitLoss(p.Positions),
	}
}

func (s *PortfolioService) Get(ctx context.Context, userID string) (PortfolioView, error) {
	u, err := s.users.Load(ctx, userID)
	if err != nil {
		return PortfolioView{}, err
	}
	return s.view(userID, u.Portfolio), nil
}

func (s *PortfolioService) Buy(ctx context.Context, userID string, req TradeRequest) (TradeResult, error) {
	return s.trade(ctx, userID, models.TransactionBuy, req)
}

func (s *PortfolioService) Sell(ctx context.Context, userID string, req TradeRequest) (TradeResult, error) {
	return s.trade(ctx, userID, models.TransactionSell, req)
}

func (s *PortfolioService) trade(ctx context.Context, userID string, side models.TransactionType, req TradeRequest) (TradeResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	in, ok := s.market.Instrument(userID, req.InstrumentID)
	if !ok {
		return TradeResult{}, tradeError(ErrUnknownInstrument, "銘柄が見つかりません: %s", req.InstrumentID)
	}
	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return TradeResult{}, err
	}

	p := u.Portfolio
	MarkToMarket(&p, priceMap(s.market.Instruments(userID)))
	order := Order{Instrument: in, Quantity: req.Quantity, Type: req.OrderType, LimitPrice: req.LimitPrice}
	now := s.now()

	var result TradeResult
	var tx models.Transaction
	if side == models.TransactionSell {
		tx, err = Sell(&p, order, now)
	} else {
		tx, err = Buy(&p, order, now)
	}
	switch {
	case err == nil:
		result.Transaction = &tx
	case errors.Is(err, ErrLimitNotMet) && req.Rest:
		pending, perr := PlaceRestingOrder(&p, side, order, now)
		if perr != nil {
			return TradeResult{}, perr
		}
		result.Pending = &pending
	default:
		return TradeResult{}, err
	}

	if err := s.save(ctx, userID, p); err != nil {
		return TradeResult{}, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"side":       side,
		"instrument": in.ID,
		"quantity":   req.Quantity,
	})
	if result.Transaction != nil {
		entry.WithField("price", tx.Price.String()).Info("Order executed")
	} else {
		entry.WithField("limit", req.LimitPrice.String()).Info("Limit order resting")
	}

	result.Portfolio = s.view(userID, p)
	return result, nil
}

// Dividend credits the instrument's dividend per share to a held position.
func (s *PortfolioService) Dividend(ctx context.Context, userID, instrumentID string) (TradeResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	in, ok := s.market.Instrument(userID, instrumentID)
	if !ok {
		return TradeResult{}, tradeError(ErrUnknownInstrument, "銘柄が見つかりません: %s", instrumentID)
	}
	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return TradeResult{}, err
	}

	p := u.Portfolio
	tx, err := ReceiveDividend(&p, instrumentID, in.DividendPerShare, s.now())
	if err != nil {
		return TradeResult{}, err
	}
	if err := s.save(ctx, userID, p); err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Transaction: &tx, Portfolio: s.view(userID, p)}, nil
}

func (s *PortfolioService) Reset(ctx context.Context, userID string) (PortfolioView, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return PortfolioView{}, err
	}
	p := u.Portfolio
	ResetPortfolio(&p, s.users.InitialCash(), s.now())
	if err := s.save(ctx, userID, p); err != nil {
		return PortfolioView{}, err
	}

	s.log.WithField("user_id", userID).Info("Portfolio reset")
	return s.view(userID, p), nil
}

func (s *PortfolioService) ChangeBroker(ctx context.Context, userID, broker string) (PortfolioView, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return PortfolioView{}, err
	}
	p := u.Portfolio
	MarkToMarket(&p, priceMap(s.market.Instruments(userID)))
	if err := ChangeBroker(&p, broker, s.now()); err != nil {
		return PortfolioView{}, err
	}
	err = s.store.Update(ctx, userID, store.Fields{
		"portfolio.brokerType": broker,
		"portfolio.history":    p.History,
	})
	if err != nil {
		return PortfolioView{}, fmt.Errorf("failed to save broker: %w", err)
	}
	return s.view(userID, p), nil
}

// Transactions returns the log newest first.
func (s *PortfolioService) Transactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	u, err := s.users.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs := make([]models.Transaction, len(u.Portfolio.Transactions))
	copy(txs, u.Portfolio.Transactions)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.After(txs[j].Date) })
	return txs, nil
}

func (s *PortfolioService) PendingOrders(ctx context.Context, userID string) ([]models.PendingOrder, error) {
	u, err := s.users.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Portfolio.PendingOrders, nil
}

func (s *PortfolioService) CancelOrder(ctx context.Context, userID, orderID string) (models.PendingOrder, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return models.PendingOrder{}, err
	}
	p := u.Portfolio
	order, err := CancelPendingOrder(&p, orderID)
	if err != nil {
		return models.PendingOrder{}, err
	}
	if err := s.store.Update(ctx, userID, store.Fields{"portfolio.pendingOrders": p.PendingOrders}); err != nil {
		return models.PendingOrder{}, fmt.Errorf("failed to save pending orders: %w", err)
	}
	return order, nil
}

// Analytics bundles allocation, P&L and risk figures.
type Analytics struct {
	TotalValue       decimal.Decimal `json:"totalValue"`
	AssetAllocation  AssetAllocation `json:"assetAllocation"`
	SectorAllocation []SectorSlice   `json:"sectorAllocation"`
	Realized         ProfitLoss      `json:"realizedProfitLoss"`
	Unrealized       ProfitLoss      `json:"unrealizedProfitLoss"`
	Performance      Performance     `json:"performance"`
	Risk             RiskMetrics     `json:"risk"`
	RealizedTax      TaxBreakdown    `json:"realizedTax"`
}

func (s *PortfolioService) Analytics(ctx context.Context, userID string, isNISA bool) (Analytics, error) {
	v, err := s.Get(ctx, userID)
	if err != nil {
		return Analytics{}, err
	}
	return Analytics{
		TotalValue:       v.TotalValue,
		AssetAllocation:  CalculateAssetAllocation(v.Portfolio),
		SectorAllocation: CalculateSectorAllocation(v.Positions),
		Realized:         v.Realized,
		Unrealized:       v.Unrealized,
		Performance:      v.Performance,
		Risk:             CalculateRiskMetrics(v.History, v.TotalValue),
		RealizedTax:      CalculateJapaneseTax(v.Realized.Net, isNISA),
	}, nil
}

// Valuate prices the stored portfolio at the given instruments.
func (s *PortfolioService) Valuate(ctx context.Context, userID string, instruments []models.Instrument) (decimal.Decimal, error) {
	u, err := s.users.Load(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	p := u.Portfolio
	MarkToMarket(&p, priceMap(instruments))
	return TotalValue(p), nil
}

// OnTick executes resting orders the new prices satisfy and returns the
// portfolio value at those prices. The portfolio is only written when an
// order was filled or cancelled.
func (s *PortfolioService) OnTick(ctx context.Context, userID string, instruments []models.Instrument) (decimal.Decimal, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	p := u.Portfolio
	MarkToMarket(&p, priceMap(instruments))

	result := ExecutePendingOrders(&p, instruments, s.now())
	if result.Changed() {
		if err := s.save(ctx, userID, p); err != nil {
			return decimal.Zero, err
		}
		for _, tx := range result.Filled {
			s.log.WithFields(logrus.Fields{
				"user_id":    userID,
				"side":       tx.Type,
				"instrument": tx.InstrumentID,
				"quantity":   tx.Quantity,
				"price":      tx.Price.String(),
			}).Info("Limit order filled")
		}
		for _, c := range result.Cancelled {
			s.log.WithFields(logrus.Fields{
				"user_id":  userID,
				"order_id": c.Order.ID,
			}).WithError(c.Reason).Warn("Limit order cancelled")
		}
	}
	return TotalValue(p), nil
}

// SnapshotAll appends a valuation point to every stored portfolio.
func (s *PortfolioService) SnapshotAll(ctx context.Context) (int, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		if err := s.snapshot(ctx, id); err != nil {
			s.log.WithError(err).WithField("user_id", id).Warn("Failed to snapshot portfolio")
			continue
		}
		n++
	}
	return n, nil
}

func (s *PortfolioService) snapshot(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	p := u.Portfolio
	MarkToMarket(&p, priceMap(s.market.Instruments(userID)))
	recordHistory(&p, s.now())

	return s.store.Update(ctx, userID, store.Fields{
		"portfolio.positions": p.Positions,
		"portfolio.history":   p.History,
	})
}

func (s *PortfolioService) save(ctx context.Context, userID string, p models.Portfolio) error {
	err := s.store.Update(ctx, userID, store.Fields{
		"portfolio.cash":          p.Cash,
		"portfolio.brokerType":    p.BrokerType,
		"portfolio.positions":     p.Positions,
		"portfolio.transactions":  p.Transactions,
		"portfolio.history":       p.History,
		"portfolio.pendingOrders": p.PendingOrders,
	})
	if err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	return nil
}
