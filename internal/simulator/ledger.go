package simulator

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krx-alertor/maps-engine/pkg/types"
	"github.com/krx-alertor/maps-engine/pkg/utils"
)

// Position is one open holding. Quantities are whole shares and positions
// are always liquidated in full.
type Position struct {
	Ticker       string
	Shares       int64
	EntryPrice   decimal.Decimal
	HighestPrice decimal.Decimal
	EntryDate    time.Time
}

// Ledger holds the cash, open positions, and trade log for one run. It is
// mutated only by the engine, on a single goroutine.
type Ledger struct {
	cash      decimal.Decimal
	positions map[string]*Position
	trades    []types.Trade
	daily     []types.DailyValue
	peak      decimal.Decimal
}

// NewLedger starts a ledger with the given cash and no positions. The peak
// tracker starts at the initial capital.
func NewLedger(initialCapital decimal.Decimal) *Ledger {
	return &Ledger{
		cash:      initialCapital,
		positions: make(map[string]*Position),
		peak:      initialCapital,
	}
}

// Cash returns the current uninvested balance.
func (l *Ledger) Cash() decimal.Decimal { return l.cash }

// Position returns the open position for a ticker, if any.
func (l *Ledger) Position(ticker string) (*Position, bool) {
	pos, ok := l.positions[ticker]
	return pos, ok
}

// HeldTickers returns the tickers with open positions in sorted order.
func (l *Ledger) HeldTickers() []string {
	tickers := make([]string, 0, len(l.positions))
	for ticker := range l.positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// Buy opens a position, debiting cash. The cash balance must never go
// negative; a buy that would overdraw is an engine bug, not a market
// condition, so it fails loudly.
func (l *Ledger) Buy(date time.Time, ticker string, shares int64, price decimal.Decimal, reason string) error {
	if shares <= 0 {
		return fmt.Errorf("buy %s: non-positive share count %d", ticker, shares)
	}
	if _, held := l.positions[ticker]; held {
		return fmt.Errorf("buy %s: position already open", ticker)
	}

	cost := price.Mul(decimal.NewFromInt(shares))
	if cost.GreaterThan(l.cash) {
		return fmt.Errorf("buy %s: cost %s exceeds cash %s", ticker, cost, l.cash)
	}

	l.cash = l.cash.Sub(cost)
	l.positions[ticker] = &Position{
		Ticker:       ticker,
		Shares:       shares,
		EntryPrice:   price,
		HighestPrice: price,
		EntryDate:    date,
	}
	l.trades = append(l.trades, types.Trade{
		ID:     utils.NewRunID(),
		Date:   date,
		Ticker: ticker,
		Action: types.TradeActionBuy,
		Shares: shares,
		Price:  price,
		Reason: reason,
	})
	return nil
}

// Sell liquidates the full position at the given price, crediting cash.
func (l *Ledger) Sell(date time.Time, ticker string, price decimal.Decimal, reason string) error {
	pos, ok := l.positions[ticker]
	if !ok {
		return fmt.Errorf("sell %s: no open position", ticker)
	}

	l.cash = l.cash.Add(price.Mul(decimal.NewFromInt(pos.Shares)))
	delete(l.positions, ticker)
	l.trades = append(l.trades, types.Trade{
		ID:     utils.NewRunID(),
		Date:   date,
		Ticker: ticker,
		Action: types.TradeActionSell,
		Shares: pos.Shares,
		Price:  price,
		Reason: reason,
	})
	return nil
}

// MarkHighest raises a position's peak price. Peaks never move down.
func (l *Ledger) MarkHighest(ticker string, price decimal.Decimal) {
	if pos, ok := l.positions[ticker]; ok && price.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = price
	}
}

// TotalValue returns cash plus the marked value of all positions at the
// given prices. A ticker missing from the map contributes its entry value;
// the engine always supplies a carried-forward close, so a miss only
// happens for a ticker with no history at all.
func (l *Ledger) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := l.cash
	for ticker, pos := range l.positions {
		price, ok := prices[ticker]
		if !ok {
			price = pos.EntryPrice
		}
		total = total.Add(price.Mul(decimal.NewFromInt(pos.Shares)))
	}
	return total
}

// RecordDay appends a point to the value series and advances the peak.
func (l *Ledger) RecordDay(date time.Time, value decimal.Decimal) {
	l.daily = append(l.daily, types.DailyValue{Date: date, TotalValue: value})
	if value.GreaterThan(l.peak) {
		l.peak = value
	}
}

// Peak returns the highest portfolio value seen, subject to resets.
func (l *Ledger) Peak() decimal.Decimal { return l.peak }

// ResetPeak sets the peak tracker, used after forced liquidations.
func (l *Ledger) ResetPeak(value decimal.Decimal) { l.peak = value }

// Trades returns the append-only trade log.
func (l *Ledger) Trades() []types.Trade { return l.trades }

// DailyValues returns the recorded value series.
func (l *Ledger) DailyValues() []types.DailyValue { return l.daily }
