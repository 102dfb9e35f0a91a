package simulator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/defense"
	"github.com/krx-alertor/maps-engine/internal/regime"
	"github.com/krx-alertor/maps-engine/internal/volatility"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

// dayState carries one simulated day through the pipeline.
type dayState struct {
	date  time.Time
	index int

	prices     map[string]decimal.Decimal
	prevPrices map[string]decimal.Decimal
	indexBars  []types.Bar

	assessment regime.Assessment
	sizing     volatility.Sizing

	selected     []string
	suppressBuys bool
}

// DailyStage is one step of the daily pipeline. The stage order returned by
// newStages is a correctness invariant: risk controls run before selection,
// selection before fills, and the day's value is recorded last.
type DailyStage struct {
	Name string
	Run  func(*Engine, *dayState) error
}

func newStages() []DailyStage {
	return []DailyStage{
		{Name: "mark_to_market", Run: (*Engine).stageMarkToMarket},
		{Name: "crash", Run: (*Engine).stageCrash},
		{Name: "stop_loss", Run: (*Engine).stageStopLoss},
		{Name: "selection", Run: (*Engine).stageSelection},
		{Name: "rebalance_sell", Run: (*Engine).stageRebalanceSell},
		{Name: "buy", Run: (*Engine).stageBuy},
		{Name: "record", Run: (*Engine).stageRecord},
	}
}

// stageMarkToMarket resolves today's carried-forward closes for the whole
// universe and runs the day's regime and volatility reads.
func (e *Engine) stageMarkToMarket(day *dayState) error {
	day.prices = make(map[string]decimal.Decimal, len(e.universe))
	day.prevPrices = make(map[string]decimal.Decimal, len(e.universe))

	for _, ticker := range e.universe {
		series := e.table.Series[ticker]
		if close, ok := series.LastCloseAt(day.date); ok && close.GreaterThan(decimal.Zero) {
			day.prices[ticker] = close
		}
		if day.index > 0 {
			if close, ok := series.LastCloseAt(e.dates[day.index-1]); ok && close.GreaterThan(decimal.Zero) {
				day.prevPrices[ticker] = close
			}
		}
	}

	var indexCloses []float64
	if e.table.Index != nil {
		day.indexBars = e.table.Index.UpTo(day.date)
		indexCloses = make([]float64, len(day.indexBars))
		for i, bar := range day.indexBars {
			indexCloses[i], _ = bar.Close.Float64()
		}
	}

	day.assessment = e.regimes.Evaluate(indexCloses)
	day.sizing = e.vol.Evaluate(day.indexBars)
	return nil
}

// stageCrash advances the defense-mode clock, then checks the crash rules
// when not already defending. A trigger liquidates everything at today's
// prices and suppresses the day's buys.
func (e *Engine) stageCrash(day *dayState) error {
	if !e.cfg.EnableDefense {
		return nil
	}

	e.crashes.UpdateDefenseMode()
	if e.crashes.InDefenseMode() {
		day.suppressBuys = true
		return nil
	}

	heldReturns := make(map[string]float64)
	for _, ticker := range e.ledger.HeldTickers() {
		price, ok := day.prices[ticker]
		prev, prevOK := day.prevPrices[ticker]
		if !ok || !prevOK || prev.LessThanOrEqual(decimal.Zero) {
			continue
		}
		ret, _ := price.Div(prev).Sub(decimal.NewFromInt(1)).Float64()
		heldReturns[ticker] = ret
	}

	det := e.crashes.CheckCrash(day.date, day.indexBars, heldReturns)
	if !det.Crash {
		return nil
	}

	e.liquidateAll(day, det.Reason, false)
	e.ledger.ResetPeak(e.ledger.Cash())
	day.suppressBuys = true
	return nil
}

// stageStopLoss raises trailing peaks, then checks the portfolio stop and
// the per-position stops. Forced sales record a cooldown per ticker.
func (e *Engine) stageStopLoss(day *dayState) error {
	if !e.cfg.EnableDefense {
		return nil
	}

	for _, ticker := range e.ledger.HeldTickers() {
		if price, ok := day.prices[ticker]; ok {
			e.ledger.MarkHighest(ticker, price)
		}
	}

	value := e.ledger.TotalValue(day.prices)
	if e.defenses.CheckPortfolioStop(value, e.ledger.Peak()) {
		e.liquidateAll(day, defense.StopPortfolio, true)
		e.ledger.ResetPeak(e.ledger.Cash())
		day.suppressBuys = true
		return nil
	}

	for _, ticker := range e.ledger.HeldTickers() {
		pos, _ := e.ledger.Position(ticker)
		price, ok := day.prices[ticker]
		if !ok {
			continue
		}
		chk := e.defenses.CheckPositionStop(pos.EntryPrice, pos.HighestPrice, price)
		if !chk.Triggered {
			continue
		}
		if err := e.ledger.Sell(day.date, ticker, price, chk.Kind); err != nil {
			return err
		}
		e.sink.IncTrade(string(types.TradeActionSell))
		e.defenses.RecordCooldown(ticker, day.date)
		e.logger.Info("stop loss executed",
			zap.Time("date", day.date),
			zap.String("ticker", ticker),
			zap.String("kind", chk.Kind))
	}
	return nil
}

// stageSelection scores the universe by deviation of the close from its
// moving average and keeps the top candidates above the replace threshold.
func (e *Engine) stageSelection(day *dayState) error {
	type scored struct {
		ticker string
		score  float64
	}

	var candidates []scored
	for _, ticker := range e.universe {
		bars := e.table.Series[ticker].UpTo(day.date)
		if len(bars) < e.cfg.MAWindow {
			continue
		}

		var sum float64
		valid := true
		for _, bar := range bars[len(bars)-e.cfg.MAWindow:] {
			close, _ := bar.Close.Float64()
			if close <= 0 {
				valid = false
				break
			}
			sum += close
		}
		if !valid {
			e.logger.Warn("skipping ticker with malformed bars",
				zap.Time("date", day.date),
				zap.String("ticker", ticker))
			continue
		}

		ma := sum / float64(e.cfg.MAWindow)
		close, _ := bars[len(bars)-1].Close.Float64()
		if ma <= 0 {
			continue
		}
		score := (close/ma - 1) * 100
		if score > e.cfg.ReplaceThreshold {
			candidates = append(candidates, scored{ticker: ticker, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ticker < candidates[j].ticker
	})
	if len(candidates) > e.cfg.MaxPositions {
		candidates = candidates[:e.cfg.MaxPositions]
	}

	day.selected = make([]string, len(candidates))
	for i, c := range candidates {
		day.selected[i] = c.ticker
	}
	return nil
}

// stageRebalanceSell exits holdings that fell out of the selected set.
func (e *Engine) stageRebalanceSell(day *dayState) error {
	selected := make(map[string]struct{}, len(day.selected))
	for _, ticker := range day.selected {
		selected[ticker] = struct{}{}
	}

	for _, ticker := range e.ledger.HeldTickers() {
		if _, keep := selected[ticker]; keep {
			continue
		}
		price, ok := day.prices[ticker]
		if !ok {
			continue
		}
		if err := e.ledger.Sell(day.date, ticker, price, "rebalance"); err != nil {
			return err
		}
		e.sink.IncTrade(string(types.TradeActionSell))
	}
	return nil
}

// stageBuy opens positions in the selected tickers, sized by the regime and
// volatility ratios, unless the day's buys are suppressed.
func (e *Engine) stageBuy(day *dayState) error {
	if day.suppressBuys || len(day.selected) == 0 {
		return nil
	}
	if day.assessment.Defensive {
		e.logger.Info("buys suppressed by bear regime",
			zap.Time("date", day.date),
			zap.Float64("confidence", day.assessment.Confidence))
		return nil
	}

	ratio := day.assessment.PositionRatio * day.sizing.SizeRatio
	if ratio <= 0 {
		return nil
	}

	total := e.ledger.TotalValue(day.prices)
	target := total.
		Div(decimal.NewFromInt(int64(len(day.selected)))).
		Mul(decimal.NewFromFloat(ratio))
	halfTarget := target.Mul(decimal.NewFromFloat(0.5))

	for _, ticker := range day.selected {
		if _, held := e.ledger.Position(ticker); held {
			continue
		}
		if e.defenses.InCooldown(ticker, day.date) {
			e.logger.Debug("skipping ticker in cooldown",
				zap.Time("date", day.date),
				zap.String("ticker", ticker))
			continue
		}
		price, ok := day.prices[ticker]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			continue
		}

		cash := e.ledger.Cash()
		if cash.LessThanOrEqual(halfTarget) {
			continue
		}

		amount := decimal.Min(target, cash)
		shares := amount.Div(price).IntPart()
		for shares > 0 && price.Mul(decimal.NewFromInt(shares)).GreaterThan(cash) {
			shares--
		}
		if shares <= 0 {
			continue
		}

		if err := e.ledger.Buy(day.date, ticker, shares, price, ""); err != nil {
			return err
		}
		e.sink.IncTrade(string(types.TradeActionBuy))
	}
	return nil
}

// stageRecord closes the day by appending the marked portfolio value.
func (e *Engine) stageRecord(day *dayState) error {
	e.ledger.RecordDay(day.date, e.ledger.TotalValue(day.prices))
	return nil
}

// liquidateAll sells every open position at today's prices with the given
// reason, optionally recording a re-entry cooldown per ticker.
func (e *Engine) liquidateAll(day *dayState, reason string, cooldown bool) {
	for _, ticker := range e.ledger.HeldTickers() {
		pos, _ := e.ledger.Position(ticker)
		price, ok := day.prices[ticker]
		if !ok {
			price = pos.EntryPrice
		}
		if err := e.ledger.Sell(day.date, ticker, price, reason); err != nil {
			e.logger.Error("liquidation failed",
				zap.String("ticker", ticker),
				zap.Error(err))
			continue
		}
		e.sink.IncTrade(string(types.TradeActionSell))
		if cooldown {
			e.defenses.RecordCooldown(ticker, day.date)
		}
	}
}
