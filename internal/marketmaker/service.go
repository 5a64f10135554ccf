package marketmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"predex.com/internal/matching"
	"predex.com/internal/store"
	"predex.com/pkg/logger"
	"predex.com/pkg/metrics"
	"predex.com/pkg/money"
)

// Service 合成做市：恒和报价 YES + NO = 面值，按成交量推价
type Service struct {
	kv  store.KV
	cfg Config
	now func() time.Time
}

func New(kv store.KV, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("marketmaker config: %w", err)
	}
	return &Service{kv: kv, cfg: cfg, now: time.Now}, nil
}

func (s *Service) initial(eventID string, cfg Config) (State, error) {
	yes, err := money.FromFloat(cfg.InitialPrice, cfg.Decimals)
	if err != nil {
		return State{}, err
	}
	face, err := money.FromFloat(cfg.FaceValue, cfg.Decimals)
	if err != nil {
		return State{}, err
	}
	lo, _ := money.FromFloat(cfg.MinPrice, cfg.Decimals)
	hi, _ := money.FromFloat(cfg.MaxPrice, cfg.Decimals)
	now := s.now().UTC()
	return State{
		EventID:       eventID,
		PriceYes:      yes,
		PriceNo:       face - yes,
		Face:          face,
		Min:           lo,
		Max:           hi,
		Decimals:      cfg.Decimals,
		SeedLiquidity: cfg.SeedLiquidity,
		Sensitivity:   decimal.NewFromFloat(cfg.Sensitivity),
		InventoryYes:  cfg.SeedLiquidity,
		InventoryNo:   cfg.SeedLiquidity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Seed 幂等：已存在时原样返回
func (s *Service) Seed(ctx context.Context, eventID string, o *Overrides) (State, error) {
	cfg := s.cfg.apply(o)
	if err := cfg.Validate(); err != nil {
		return State{}, err
	}
	st, err := s.initial(eventID, cfg)
	if err != nil {
		return State{}, err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return State{}, err
	}

	key := store.MMStateKey(eventID)
	// Reset 并发时 SetNX 失败后可能读不到，重试一次
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.kv.SetNX(ctx, key, raw, 0)
		if err != nil {
			return State{}, s.fail(ctx, "seed", eventID, err)
		}
		if created {
			logger.Info(logger.WithEventID(ctx, eventID), "market maker seeded",
				zap.String("price_yes", money.Format(st.PriceYes, st.Decimals)),
				zap.Int64("seed_liquidity", st.SeedLiquidity),
			)
			s.observe(st)
			return st, nil
		}
		cur, err := s.load(ctx, eventID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		return cur, err
	}
	return State{}, s.fail(ctx, "seed", eventID, errors.New("state vanished during seed"))
}

func (s *Service) load(ctx context.Context, eventID string) (State, error) {
	raw, err := s.kv.Get(ctx, store.MMStateKey(eventID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return State{}, err
		}
		return State{}, s.fail(ctx, "get", eventID, err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, s.fail(ctx, "decode", eventID, err)
	}
	return st, nil
}

// GetQuote 没有状态时先 seed
func (s *Service) GetQuote(ctx context.Context, eventID string) (Quote, error) {
	st, err := s.load(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		st, err = s.Seed(ctx, eventID, nil)
	}
	if err != nil {
		return Quote{}, err
	}
	return st.Quote(), nil
}

// ApplyTrades 在 store 的单 key 原子读改写里推价
func (s *Service) ApplyTrades(ctx context.Context, eventID string, trades []matching.Trade) (State, error) {
	if len(trades) == 0 {
		q, err := s.GetQuote(ctx, eventID)
		return q.State, err
	}
	var out State
	_, err := s.kv.Update(ctx, store.MMStateKey(eventID), func(cur []byte, exists bool) ([]byte, error) {
		var st State
		if exists {
			if err := json.Unmarshal(cur, &st); err != nil {
				return nil, fmt.Errorf("decode state: %w", err)
			}
		} else {
			seeded, err := s.initial(eventID, s.cfg)
			if err != nil {
				return nil, err
			}
			st = seeded
		}
		out = s.apply(st, trades)
		return json.Marshal(out)
	})
	if err != nil {
		return State{}, s.fail(ctx, "apply", eventID, err)
	}
	s.observe(out)
	logger.Debug(logger.WithEventID(ctx, eventID), "market maker repriced",
		zap.Int("trades", len(trades)),
		zap.String("price_yes", money.Format(out.PriceYes, out.Decimals)),
		zap.String("price_no", money.Format(out.PriceNo, out.Decimals)),
	)
	return out, nil
}

// apply 纯函数：价格在 decimal 里算，落盘前再四舍五入到最小单位
func (s *Service) apply(st State, trades []matching.Trade) State {
	dec := st.Decimals
	yes := money.ToDecimal(st.PriceYes, dec)
	lo := money.ToDecimal(st.Min, dec)
	hi := money.ToDecimal(st.Max, dec)
	seed := decimal.NewFromInt(st.SeedLiquidity)

	for _, t := range trades {
		if t.Qty <= 0 {
			continue
		}
		delta := decimal.NewFromInt(t.Qty).Div(seed).Mul(st.Sensitivity)
		switch t.TakerSide {
		case matching.SideYes:
			yes = yes.Add(delta)
			st.InventoryYes = max(st.InventoryYes-t.Qty, 0)
			st.NetYesExposure += t.Qty
		case matching.SideNo:
			yes = yes.Sub(delta)
			st.InventoryNo = max(st.InventoryNo-t.Qty, 0)
			st.NetYesExposure -= t.Qty
		default:
			continue
		}
		if yes.LessThan(lo) {
			yes = lo
		}
		if yes.GreaterThan(hi) {
			yes = hi
		}
	}
	st.PriceYes = money.ToMinor(yes, dec)
	// NO 永远由 YES 推出，不单独漂移
	st.PriceNo = st.Face - st.PriceYes
	st.UpdatedAt = s.now().UTC()
	return st
}

func (s *Service) Reset(ctx context.Context, eventID string) error {
	if err := s.kv.Del(ctx, store.MMStateKey(eventID)); err != nil {
		return s.fail(ctx, "reset", eventID, err)
	}
	metrics.MMInventory.DeleteLabelValues(eventID, "YES")
	metrics.MMInventory.DeleteLabelValues(eventID, "NO")
	metrics.MMNetExposure.DeleteLabelValues(eventID)
	logger.Info(logger.WithEventID(ctx, eventID), "market maker reset")
	return nil
}

func (s *Service) observe(st State) {
	metrics.MMInventory.WithLabelValues(st.EventID, "YES").Set(float64(st.InventoryYes))
	metrics.MMInventory.WithLabelValues(st.EventID, "NO").Set(float64(st.InventoryNo))
	metrics.MMNetExposure.WithLabelValues(st.EventID).Set(float64(st.NetYesExposure))
}

func (s *Service) fail(ctx context.Context, op, eventID string, err error) error {
	metrics.MMErrors.WithLabelValues(op).Inc()
	logger.Error(logger.WithEventID(ctx, eventID), "market maker store error",
		zap.String("op", op),
		zap.Error(err),
	)
	return fmt.Errorf("marketmaker %s %s: %w", op, eventID, err)
}
