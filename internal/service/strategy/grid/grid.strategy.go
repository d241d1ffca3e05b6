package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/krobus00/bot-service/internal/datasource/okx"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/registry"
	"github.com/krobus00/bot-service/internal/service/strategy"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	Name = "grid"

	defaultReconcileInterval = 5 * time.Second
	defaultTradeMode         = "cash"
	sizePrecision            = 8
	pricePrecision           = 8
)

var (
	ErrMissingInstrument = errors.New("grid inst_id is required")
	ErrInvalidPrice      = errors.New("price must be greater than zero")
)

type Config struct {
	InstrumentID string           `mapstructure:"inst_id"`
	TradeMode    string           `mapstructure:"td_mode"`
	OrderType    entity.OrderType `mapstructure:"ord_type"`
	GridPercent  decimal.Decimal  `mapstructure:"grid_percent"`
	BaseSize     decimal.Decimal  `mapstructure:"base_size"`
	TotalBudget  decimal.Decimal  `mapstructure:"total_budget"`
	FeeRate      decimal.Decimal  `mapstructure:"fee_rate"`
	InitialPrice decimal.Decimal  `mapstructure:"initial_price"`
	StateKey     string           `mapstructure:"state_key"`

	// MaxLongLevels caps concurrently held levels, 0 means unlimited.
	MaxLongLevels     int           `mapstructure:"max_long_levels"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

type pending struct {
	size   decimal.Decimal
	uniqID string
}

// Strategy buys each grid level the price falls through and sells a held
// level one step above its entry. Fills are assumed from the trade tape;
// orders the executor reports as failed are released on reconcile.
type Strategy struct {
	*strategy.Base

	cfg      Config
	store    StateStore
	registry *registry.Registry

	mu           sync.Mutex
	anchorPrice  decimal.Decimal
	lastLevel    int
	filled       map[int]decimal.Decimal
	pendingBuys  map[int]pending
	pendingSells map[int]pending
}

func New(ctx context.Context, base *strategy.Base, cfg Config, store StateStore) (*Strategy, error) {
	cfg, err := normalizeConfig(cfg, base)
	if err != nil {
		return nil, err
	}

	s := &Strategy{
		Base:         base,
		cfg:          cfg,
		store:        store,
		anchorPrice:  cfg.InitialPrice,
		filled:       make(map[int]decimal.Decimal),
		pendingBuys:  make(map[int]pending),
		pendingSells: make(map[int]pending),
	}

	s.registry, err = registry.NewBuilder().
		Inherit(base.Registry()).
		Subscribe(okx.Trades{InstID: cfg.InstrumentID}, "on_trade", s.onTrade).
		Every(cfg.ReconcileInterval, "reconcile", s.reconcile).
		Build()
	if err != nil {
		return nil, err
	}

	if err := s.restore(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func normalizeConfig(cfg Config, base *strategy.Base) (Config, error) {
	cfg.InstrumentID = strings.TrimSpace(cfg.InstrumentID)
	if cfg.InstrumentID == "" {
		return cfg, ErrMissingInstrument
	}
	if cfg.TradeMode == "" {
		cfg.TradeMode = defaultTradeMode
	}
	if cfg.OrderType == "" {
		cfg.OrderType = entity.OrderTypeLimit
	}
	if cfg.GridPercent.LessThanOrEqual(decimal.Zero) {
		cfg.GridPercent = decimal.NewFromFloat(0.005)
	}
	if cfg.BaseSize.LessThanOrEqual(decimal.Zero) {
		cfg.BaseSize = decimal.NewFromInt(1)
	}
	if cfg.FeeRate.LessThan(decimal.Zero) || cfg.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		cfg.FeeRate = decimal.Zero
	}
	if cfg.MaxLongLevels < 0 {
		cfg.MaxLongLevels = 0
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaultReconcileInterval
	}
	if cfg.StateKey == "" {
		cfg.StateKey = fmt.Sprintf("grid:%s:%s:%s", base.Exchange(), cfg.InstrumentID, base.BotID())
	}

	return cfg, nil
}

func (s *Strategy) Registry() *registry.Registry {
	return s.registry
}

func (s *Strategy) restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	state, found, err := s.store.Load(ctx, s.cfg.StateKey)
	if err != nil || !found {
		return err
	}

	s.anchorPrice = state.AnchorPrice
	s.lastLevel = state.LastLevel
	for _, position := range state.Positions {
		if position.Size.IsPositive() {
			s.filled[position.Level] = position.Size
		}
	}
	for _, position := range state.PendingBuys {
		if position.Size.IsPositive() {
			s.pendingBuys[position.Level] = pending{size: position.Size, uniqID: position.UniqID}
		}
	}
	for _, position := range state.PendingSells {
		if position.Size.IsPositive() {
			s.pendingSells[position.Level] = pending{size: position.Size, uniqID: position.UniqID}
		}
	}

	s.Logger().WithFields(logrus.Fields{
		"state_key":     s.cfg.StateKey,
		"anchor_price":  s.anchorPrice,
		"last_level":    s.lastLevel,
		"positions":     len(s.filled),
		"pending_buys":  len(s.pendingBuys),
		"pending_sells": len(s.pendingSells),
	}).Info("grid state restored")

	return nil
}

func (s *Strategy) onTrade(ctx context.Context, resp entity.ResponseOfSub) error {
	trade, ok := resp.(okx.TradesResponse)
	if !ok {
		return fmt.Errorf("grid: unexpected response %T", resp)
	}

	return s.OnPrice(ctx, trade.Price)
}

// OnPrice advances the grid to price, placing orders for every level
// crossed since the previous price.
func (s *Strategy) OnPrice(ctx context.Context, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !price.IsPositive() {
		return ErrInvalidPrice
	}

	if s.anchorPrice.IsZero() {
		s.anchorPrice = price
		s.lastLevel = 0
		s.Logger().WithField("anchor_price", price).Info("grid initialized")
		return s.persist(ctx)
	}

	s.assumeFills(price)

	current := gridLevel(s.anchorPrice, price, s.cfg.GridPercent)
	if current == s.lastLevel {
		return s.persist(ctx)
	}

	if current < s.lastLevel {
		for _, level := range s.collectBuyLevels(current, s.lastLevel) {
			levelPrice := s.levelPrice(level)
			size := s.sizeFor(levelPrice)
			if !size.IsPositive() {
				continue
			}

			uniqID, err := s.place(ctx, entity.OrderSideBuy, levelPrice, size)
			if err != nil {
				return err
			}
			s.pendingBuys[level] = pending{size: size, uniqID: uniqID}
		}
	}

	if current > s.lastLevel {
		for _, level := range s.collectSellLevels(current) {
			size := s.filled[level]
			if !size.IsPositive() {
				continue
			}

			uniqID, err := s.place(ctx, entity.OrderSideSell, s.takeProfitPrice(level), size)
			if err != nil {
				return err
			}
			s.pendingSells[level] = pending{size: size, uniqID: uniqID}
		}
	}

	s.Logger().WithFields(logrus.Fields{
		"price":         price,
		"from_level":    s.lastLevel,
		"to_level":      current,
		"positions":     len(s.filled),
		"pending_buys":  len(s.pendingBuys),
		"pending_sells": len(s.pendingSells),
	}).Debug("grid level changed")

	s.lastLevel = current
	return s.persist(ctx)
}

func (s *Strategy) place(ctx context.Context, side entity.OrderSide, price, size decimal.Decimal) (string, error) {
	params := entity.OrderParams{
		InstrumentID: s.cfg.InstrumentID,
		TradeMode:    s.cfg.TradeMode,
		Side:         side,
		Type:         s.cfg.OrderType,
		Size:         size,
	}
	if s.cfg.OrderType == entity.OrderTypeLimit {
		params.Price = price.Round(pricePrecision)
	}

	uniqID, err := s.CreateOrder(ctx, params)
	if err != nil {
		return "", fmt.Errorf("grid %s order: %w", side, err)
	}

	s.Logger().WithFields(logrus.Fields{
		"uniq_id": uniqID,
		"side":    side,
		"price":   params.Price,
		"size":    size,
	}).Info("grid order submitted")

	return uniqID, nil
}

// reconcile releases pending levels whose orders the executor rejected.
func (s *Strategy) reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for level, order := range s.pendingBuys {
		if s.failed(ctx, order.uniqID) {
			delete(s.pendingBuys, level)
			changed = true
		}
	}
	for level, order := range s.pendingSells {
		if s.failed(ctx, order.uniqID) {
			delete(s.pendingSells, level)
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return s.persist(ctx)
}

func (s *Strategy) failed(ctx context.Context, uniqID string) bool {
	if uniqID == "" {
		return false
	}

	result, err := s.QueryOrder(ctx, uniqID)
	if err != nil {
		if !errors.Is(err, entity.ErrOrderResultNotFound) {
			s.Logger().WithError(err).WithField("uniq_id", uniqID).Warn("grid reconcile query failed")
		}
		return false
	}

	if result.Status != entity.OrderStatusFailed {
		return false
	}

	s.Logger().WithFields(logrus.Fields{
		"uniq_id": uniqID,
		"message": result.Message,
	}).Warn("grid order failed, releasing level")
	return true
}

func (s *Strategy) assumeFills(price decimal.Decimal) {
	for level, order := range s.pendingBuys {
		if price.LessThanOrEqual(s.levelPrice(level)) {
			s.filled[level] = order.size
			delete(s.pendingBuys, level)
		}
	}

	for level := range s.pendingSells {
		if price.GreaterThanOrEqual(s.takeProfitPrice(level)) {
			delete(s.pendingSells, level)
			delete(s.filled, level)
		}
	}
}

func (s *Strategy) collectBuyLevels(current, previous int) []int {
	levels := make([]int, 0)
	for level := previous - 1; level >= current; level-- {
		if level >= 0 {
			continue
		}
		if _, ok := s.filled[level]; ok {
			continue
		}
		if _, ok := s.pendingBuys[level]; ok {
			continue
		}
		if s.cfg.MaxLongLevels > 0 && len(s.filled)+len(s.pendingBuys)+len(levels) >= s.cfg.MaxLongLevels {
			break
		}
		levels = append(levels, level)
	}

	return levels
}

func (s *Strategy) collectSellLevels(current int) []int {
	levels := make([]int, 0)
	for level := range s.filled {
		if level >= current {
			continue
		}
		if _, ok := s.pendingSells[level]; ok {
			continue
		}
		levels = append(levels, level)
	}
	sort.Ints(levels)

	return levels
}

func (s *Strategy) takeProfitPrice(level int) decimal.Decimal {
	return s.levelPrice(level + 1)
}

func (s *Strategy) levelPrice(level int) decimal.Decimal {
	step, _ := decimal.NewFromInt(1).Add(s.cfg.GridPercent).Float64()
	if step <= 1 {
		return s.anchorPrice
	}

	return s.anchorPrice.Mul(decimal.NewFromFloat(math.Pow(step, float64(level))))
}

// sizeFor spreads TotalBudget over MaxLongLevels net of fees, falling back to
// BaseSize when no budget is set.
func (s *Strategy) sizeFor(price decimal.Decimal) decimal.Decimal {
	if !s.cfg.TotalBudget.IsPositive() || s.cfg.MaxLongLevels <= 0 || !price.IsPositive() {
		return s.cfg.BaseSize
	}

	perLevel := s.cfg.TotalBudget.Div(decimal.NewFromInt(int64(s.cfg.MaxLongLevels)))
	net := perLevel.Mul(decimal.NewFromInt(1).Sub(s.cfg.FeeRate))
	size := net.Div(price).Truncate(sizePrecision)
	if !size.IsPositive() {
		return s.cfg.BaseSize
	}

	return size
}

func (s *Strategy) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	return s.store.Save(ctx, s.cfg.StateKey, s.snapshot())
}

func (s *Strategy) snapshot() State {
	state := State{
		AnchorPrice: s.anchorPrice,
		LastLevel:   s.lastLevel,
		Positions:   make([]Position, 0, len(s.filled)),
	}
	for level, size := range s.filled {
		state.Positions = append(state.Positions, Position{Level: level, Size: size})
	}
	for level, order := range s.pendingBuys {
		state.PendingBuys = append(state.PendingBuys, Position{Level: level, Size: order.size, UniqID: order.uniqID})
	}
	for level, order := range s.pendingSells {
		state.PendingSells = append(state.PendingSells, Position{Level: level, Size: order.size, UniqID: order.uniqID})
	}

	sortPositions(state.Positions)
	sortPositions(state.PendingBuys)
	sortPositions(state.PendingSells)
	return state
}

func sortPositions(positions []Position) {
	sort.Slice(positions, func(i, j int) bool { return positions[i].Level < positions[j].Level })
}

func gridLevel(anchorPrice, price, gridPercent decimal.Decimal) int {
	if !anchorPrice.IsPositive() || !price.IsPositive() || !gridPercent.IsPositive() {
		return 0
	}

	ratio, _ := price.Div(anchorPrice).Float64()
	gridSize, _ := gridPercent.Float64()
	step := 1 + gridSize
	if ratio <= 0 || step <= 1 {
		return 0
	}

	return int(math.Floor(math.Log(ratio) / math.Log(step)))
}
