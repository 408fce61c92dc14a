package services

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/content"
	"github.com/souta-pqr/money-suppli/internal/models"
)

const (
	ConditionNormal   = "normal"
	ConditionBull     = "bull"
	ConditionBear     = "bear"
	ConditionVolatile = "volatile"

	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"

	SpeedSlow   = "slow"
	SpeedNormal = "normal"
	SpeedFast   = "fast"

	allSectors = "全セクター"
	maxChange  = 10.0
)

var (
	ErrUnknownCondition  = errors.New("unknown market condition")
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrUnknownSpeed      = errors.New("unknown simulation speed")
	ErrUnknownPeriod     = errors.New("unknown simulation period")
	ErrEventNotFound     = errors.New("market event not found")
	ErrUnknownInstrument = errors.New("unknown instrument")
)

type marketFactor struct {
	drift      float64
	volatility float64
}

var marketConditions = map[string]marketFactor{
	ConditionNormal:   {drift: 0.01, volatility: 0.02},
	ConditionBull:     {drift: 0.03, volatility: 0.04},
	ConditionBear:     {drift: -0.02, volatility: 0.03},
	ConditionVolatile: {drift: 0, volatility: 0.08},
}

var difficultyFactors = map[string]float64{
	DifficultyBeginner:     1.0,
	DifficultyIntermediate: 1.2,
	DifficultyAdvanced:     1.5,
}

var speedIntervals = map[string]time.Duration{
	SpeedSlow:   10 * time.Second,
	SpeedNormal: 5 * time.Second,
	SpeedFast:   2 * time.Second,
}

// periodSteps is how far the simulated clock moves per tick.
var periodSteps = map[string]time.Duration{
	"1day":    time.Hour,
	"1week":   24 * time.Hour,
	"1month":  7 * 24 * time.Hour,
	"3months": 14 * 24 * time.Hour,
	"6months": 30 * 24 * time.Hour,
	"1year":   60 * 24 * time.Hour,
}

type newsEvent struct {
	title   string
	impact  float64
	sectors []string
}

func (e newsEvent) affects(sector string) bool {
	for _, s := range e.sectors {
		if s == sector || s == allSectors {
			return true
		}
	}
	return false
}

var newsEvents = []newsEvent{
	{"中央銀行が利上げを発表", -0.02, []string{"金融", "テクノロジー"}},
	{"経済指標が予想を上回る", 0.025, []string{"小売", "消費財"}},
	{"原油価格の急騰", -0.015, []string{"運輸", "航空"}},
	{"テクノロジー企業の好決算", 0.03, []string{"テクノロジー"}},
	{"貿易摩擦の激化", -0.02, []string{"自動車", "製造"}},
	{"新たな経済刺激策の発表", 0.02, []string{allSectors}},
	{"米ドル高の進行", -0.01, []string{"輸出", "素材"}},
	{"医薬品の大型治験成功", 0.04, []string{"医薬品"}},
	{"小売売上高の減少", -0.02, []string{"小売", "消費財"}},
	{"半導体供給不足の緩和", 0.025, []string{"テクノロジー", "自動車"}},
}

// SimulationSettings selects the behavior of a session. Empty fields take
// the defaults: 1month, normal, beginner, normal speed.
type SimulationSettings struct {
	Period          string `json:"period"`
	MarketCondition string `json:"marketCondition"`
	Difficulty      string `json:"difficulty"`
	Speed           string `json:"speed"`
}

func (s SimulationSettings) withDefaults() SimulationSettings {
	if s.Period == "" {
		s.Period = "1month"
	}
	if s.MarketCondition == "" {
		s.MarketCondition = ConditionNormal
	}
	if s.Difficulty == "" {
		s.Difficulty = DifficultyBeginner
	}
	if s.Speed == "" {
		s.Speed = SpeedNormal
	}
	return s
}

func (s SimulationSettings) validate() error {
	if _, ok := periodSteps[s.Period]; !ok {
		return ErrUnknownPeriod
	}
	if _, ok := marketConditions[s.MarketCondition]; !ok {
		return ErrUnknownCondition
	}
	if _, ok := difficultyFactors[s.Difficulty]; !ok {
		return ErrUnknownDifficulty
	}
	if _, ok := speedIntervals[s.Speed]; !ok {
		return ErrUnknownSpeed
	}
	return nil
}

// SimulationState is a snapshot of a user's session.
type SimulationState struct {
	Active      bool                  `json:"active"`
	Settings    SimulationSettings    `json:"settings"`
	Date        time.Time             `json:"date"`
	Instruments []models.Instrument   `json:"instruments"`
	Events      []models.MarketEvent  `json:"events"`
	History     []models.HistoryPoint `json:"history"`
}

// Broadcaster delivers ticks to a user's live connections.
type Broadcaster interface {
	Publish(tick models.MarketTick)
}

// PortfolioObserver values a user's portfolio against session prices. OnTick
// is called once per simulated step and may execute resting orders.
type PortfolioObserver interface {
	Valuate(ctx context.Context, userID string, instruments []models.Instrument) (decimal.Decimal, error)
	OnTick(ctx context.Context, userID string, instruments []models.Instrument) (decimal.Decimal, error)
}

type session struct {
	mu          sync.Mutex
	userID      string
	settings    SimulationSettings
	instruments []models.Instrument
	active      bool
	date        time.Time
	events      []models.MarketEvent
	history     []models.HistoryPoint
	cancel      context.CancelFunc
	done        chan struct{}
	rng         *rand.Rand
	lastSeen    time.Time // guarded by MarketSimulator.mu
}

// MarketSimulator runs one random-walk market per user. Each user starts
// from the catalog prices and only sees their own session's prices.
type MarketSimulator struct {
	mu       sync.Mutex
	sessions map[string]*session
	ctx      context.Context
	hub      Broadcaster
	observer PortfolioObserver
	newRand  func() *rand.Rand
	now      func() time.Time
	interval func(speed string) time.Duration
	log      *logrus.Logger
}

// NewMarketSimulator creates a simulator whose tickers stop when ctx is
// cancelled.
func NewMarketSimulator(ctx context.Context, hub Broadcaster, log *logrus.Logger) *MarketSimulator {
	return &MarketSimulator{
		sessions: make(map[string]*session),
		ctx:      ctx,
		hub:      hub,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		now: time.Now,
		interval: func(speed string) time.Duration {
			return speedIntervals[speed]
		},
		log: log,
	}
}

// SetObserver wires the portfolio side in after construction.
func (m *MarketSimulator) SetObserver(o PortfolioObserver) {
	m.observer = o
}

// SetRandFactory replaces the random source used by new sessions.
func (m *MarketSimulator) SetRandFactory(f func() *rand.Rand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newRand = f
}

func (m *MarketSimulator) session(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		s = &session{
			userID:      userID,
			settings:    SimulationSettings{}.withDefaults(),
			instruments: content.Instruments(),
			date:        m.now(),
			events:      []models.MarketEvent{},
			history:     []models.HistoryPoint{},
			rng:         m.newRand(),
		}
		m.sessions[userID] = s
	}
	s.lastSeen = m.now()
	return s
}

// Instruments returns the user's current market.
func (m *MarketSimulator) Instruments(userID string) []models.Instrument {
	s := m.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyInstruments(s.instruments)
}

func (m *MarketSimulator) Instrument(userID, instrumentID string) (models.Instrument, bool) {
	for _, in := range m.Instruments(userID) {
		if in.ID == instrumentID {
			return in, true
		}
	}
	return models.Instrument{}, false
}

// Prices maps instrument ids to the user's current prices.
func (m *MarketSimulator) Prices(userID string) map[string]decimal.Decimal {
	return priceMap(m.Instruments(userID))
}

// Start resets the session clock, events and history and starts ticking at
// the configured speed. A running session is restarted.
func (m *MarketSimulator) Start(ctx context.Context, userID string, settings SimulationSettings) (SimulationState, error) {
	settings = settings.withDefaults()
	if err := settings.validate(); err != nil {
		return SimulationState{}, err
	}

	s := m.session(userID)
	now := m.now()
	history := []models.HistoryPoint{}
	if m.observer != nil {
		value, err := m.observer.Valuate(ctx, userID, m.Instruments(userID))
		if err != nil {
			m.log.WithError(err).WithField("user_id", userID).Warn("Failed to value portfolio at simulation start")
		} else {
			history = append(history, models.HistoryPoint{Date: now, Value: value})
		}
	}

	s.mu.Lock()
	s.settings = settings
	s.active = true
	s.date = now
	s.events = []models.MarketEvent{}
	s.history = history
	prev := m.startTickerLocked(s)
	s.mu.Unlock()
	waitTicker(prev)

	m.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"condition": settings.MarketCondition,
		"period":    settings.Period,
		"speed":     settings.Speed,
	}).Info("Simulation started")

	return m.State(userID), nil
}

// Stop halts the ticker. Prices, events and history are kept.
func (m *MarketSimulator) Stop(userID string) SimulationState {
	s := m.session(userID)
	s.mu.Lock()
	prev := s.stopTickerLocked()
	s.active = false
	s.mu.Unlock()
	waitTicker(prev)

	m.log.WithField("user_id", userID).Info("Simulation stopped")
	return m.State(userID)
}

// SetSpeed changes the tick interval, restarting the ticker of an active
// session.
func (m *MarketSimulator) SetSpeed(userID, speed string) (SimulationState, error) {
	if _, ok := speedIntervals[speed]; !ok {
		return SimulationState{}, ErrUnknownSpeed
	}

	s := m.session(userID)
	s.mu.Lock()
	s.settings.Speed = speed
	var prev <-chan struct{}
	if s.active {
		prev = m.startTickerLocked(s)
	}
	s.mu.Unlock()
	waitTicker(prev)

	return m.State(userID), nil
}

func (m *MarketSimulator) State(userID string) SimulationState {
	s := m.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]models.MarketEvent, len(s.events))
	copy(events, s.events)
	history := make([]models.HistoryPoint, len(s.history))
	copy(history, s.history)

	return SimulationState{
		Active:      s.active,
		Settings:    s.settings,
		Date:        s.date,
		Instruments: copyInstruments(s.instruments),
		Events:      events,
		History:     history,
	}
}

func (m *MarketSimulator) MarkEventRead(userID string, index int) error {
	s := m.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.events) {
		return ErrEventNotFound
	}
	s.events[index].Read = true
	return nil
}

// StopAll cancels every running session.
func (m *MarketSimulator) StopAll() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		prev := s.stopTickerLocked()
		s.active = false
		s.mu.Unlock()
		waitTicker(prev)
	}
}

// EvictIdle drops stopped sessions that nobody has read for longer than
// maxIdle. Their prices restart from the catalog on the next access.
func (m *MarketSimulator) EvictIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if !s.lastSeen.Before(cutoff) {
			continue
		}
		s.mu.Lock()
		active := s.active
		s.mu.Unlock()
		if active {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	return n
}

// startTickerLocked replaces the session's ticker with one at the current
// speed. The caller holds s.mu and waits on the returned channel, if any,
// after unlocking.
func (m *MarketSimulator) startTickerLocked(s *session) <-chan struct{} {
	prev := s.stopTickerLocked()

	ctx, cancel := context.WithCancel(m.ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go m.runTicker(ctx, s.userID, m.interval(s.settings.Speed), done)
	return prev
}

// stopTickerLocked cancels the running ticker and returns the channel that
// closes once its goroutine has exited.
func (s *session) stopTickerLocked() <-chan struct{} {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	done := s.done
	s.cancel = nil
	s.done = nil
	return done
}

func waitTicker(done <-chan struct{}) {
	if done != nil {
		<-done
	}
}

func (m *MarketSimulator) runTicker(ctx context.Context, userID string, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if _, err := m.Step(ctx, userID); err != nil {
				m.log.WithError(err).WithField("user_id", userID).Warn("Simulation step failed")
			}
		}
	}
}

// Step advances the user's market by one tick, values the portfolio and
// publishes the result. The ticker calls it; it can also be driven by hand.
func (m *MarketSimulator) Step(ctx context.Context, userID string) (models.MarketTick, error) {
	s := m.session(userID)

	s.mu.Lock()
	event := s.advance()
	if event != nil {
		s.events = append(s.events, *event)
	}
	// history points carry the date before the step
	pointDate := s.date
	s.date = s.date.Add(periodSteps[s.settings.Period])
	instruments := copyInstruments(s.instruments)
	s.mu.Unlock()

	tick := models.MarketTick{
		UserID:      userID,
		Date:        pointDate,
		Instruments: instruments,
		Event:       event,
	}

	if m.observer != nil {
		value, err := m.observer.OnTick(ctx, userID, instruments)
		if err != nil {
			return tick, err
		}
		tick.Value = value

		s.mu.Lock()
		s.history = append(s.history, models.HistoryPoint{Date: pointDate, Value: value})
		s.mu.Unlock()
	}

	if m.hub != nil {
		m.hub.Publish(tick)
	}
	return tick, nil
}

// advance moves every price one step and returns the news event of this
// tick, if any. The caller holds s.mu.
func (s *session) advance() *models.MarketEvent {
	factor := marketConditions[s.settings.MarketCondition]
	difficulty := difficultyFactors[s.settings.Difficulty]

	var news *newsEvent
	if s.rng.Float64() < 0.05*difficulty {
		news = &newsEvents[s.rng.Intn(len(newsEvents))]
	}

	for i := range s.instruments {
		in := &s.instruments[i]
		change := (s.rng.Float64()-0.5)*factor.volatility*difficulty*100 + factor.drift*100
		if news != nil && news.affects(in.Sector) {
			change += news.impact * 100
		}
		change = math.Max(math.Min(change, maxChange), -maxChange)

		in.Price = in.Price.Mul(decimal.NewFromFloat(1 + change/100)).Round(2)
		in.Change = math.Round(change*100) / 100
	}

	if news == nil {
		return nil
	}
	sectors := make([]string, len(news.sectors))
	copy(sectors, news.sectors)
	return &models.MarketEvent{
		Title:   news.title,
		Impact:  news.impact,
		Sectors: sectors,
		Date:    s.date,
	}
}

func copyInstruments(in []models.Instrument) []models.Instrument {
	out := make([]models.Instrument, len(in))
	copy(out, in)
	return out
}

func priceMap(instruments []models.Instrument) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(instruments))
	for _, in := range instruments {
		prices[in.ID] = in.Price
	}
	return prices
}
