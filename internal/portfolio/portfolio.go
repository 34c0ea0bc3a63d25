// Package portfolio tracks cash, holdings, P&L and risk limits.
//
// The CashBook keeps per-currency cash and per-asset holdings in exact
// decimals, applies fills reported by the execution layer and values the
// account at the latest prices.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// ErrInsufficientFunds is returned when a fill would overdraw cash or holdings.
var ErrInsufficientFunds = errors.New("portfolio: insufficient funds")

// Pair is a traded symbol split into base asset and quote currency.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Symbol returns the concatenated symbol, e.g. "ETHEUR".
func (p Pair) Symbol() string { return p.Base + p.Quote }

// ParsePair splits symbol using the known quote currency suffix.
func ParsePair(symbol, quote string) (Pair, error) {
	symbol, quote = strings.ToUpper(symbol), strings.ToUpper(quote)
	if quote == "" || !strings.HasSuffix(symbol, quote) || len(symbol) == len(quote) {
		return Pair{}, fmt.Errorf("portfolio: symbol %q does not end in quote currency %q", symbol, quote)
	}
	return Pair{Base: strings.TrimSuffix(symbol, quote), Quote: quote}, nil
}

// CashBook holds cash per currency and holdings per asset.
type CashBook struct {
	mu       sync.RWMutex
	cash     map[string]decimal.Decimal
	holdings map[string]decimal.Decimal
}

// NewCashBook creates an empty cash book.
func NewCashBook() *CashBook {
	return &CashBook{
		cash:     make(map[string]decimal.Decimal),
		holdings: make(map[string]decimal.Decimal),
	}
}

// Deposit adds amount to the ccy cash balance.
func (b *CashBook) Deposit(ccy string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cash[ccy] = b.cash[ccy].Add(amount)
}

// SetHoldings overwrites the held quantity of asset.
func (b *CashBook) SetHoldings(asset string, qty decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings[asset] = qty
}

func (b *CashBook) Cash(ccy string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cash[ccy]
}

func (b *CashBook) Holdings(asset string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.holdings[asset]
}

// Apply books a filled order event against pair. Buys spend quote cash
// (notional + fee) and add base holdings; sells do the reverse. Non-fill
// events are ignored.
func (b *CashBook) Apply(pair Pair, ev model.OrderEvent) error {
	if ev.Status != model.OrderFilled {
		return nil
	}
	notional := ev.Notional()

	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev.Direction {
	case model.DirectionBuy:
		cost := notional.Add(ev.Fee)
		if cost.GreaterThan(b.cash[pair.Quote]) {
			return fmt.Errorf("buy %s %s costs %s %s, have %s: %w",
				ev.Quantity, pair.Base, cost, pair.Quote, b.cash[pair.Quote], ErrInsufficientFunds)
		}
		b.cash[pair.Quote] = b.cash[pair.Quote].Sub(cost)
		b.holdings[pair.Base] = b.holdings[pair.Base].Add(ev.Quantity)
	case model.DirectionSell:
		if ev.Quantity.GreaterThan(b.holdings[pair.Base]) {
			return fmt.Errorf("sell %s %s, hold %s: %w",
				ev.Quantity, pair.Base, b.holdings[pair.Base], ErrInsufficientFunds)
		}
		b.holdings[pair.Base] = b.holdings[pair.Base].Sub(ev.Quantity)
		b.cash[pair.Quote] = b.cash[pair.Quote].Add(notional.Sub(ev.Fee))
	default:
		return fmt.Errorf("portfolio: unknown direction %q", ev.Direction)
	}
	return nil
}

// TotalValue returns the account value in quote currency. prices maps an
// asset to its latest price in quote; cash in other currencies is ignored.
func (b *CashBook) TotalValue(quote string, prices map[string]decimal.Decimal) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := b.cash[quote]
	for asset, qty := range b.holdings {
		if p, ok := prices[asset]; ok {
			total = total.Add(qty.Mul(p))
		}
	}
	return total
}

// Balance is one line of the cash book.
type Balance struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Cash   bool            `json:"cash"`
}

// Balances returns all non-zero lines sorted by name, cash first.
func (b *CashBook) Balances() []Balance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Balance, 0, len(b.cash)+len(b.holdings))
	for ccy, amt := range b.cash {
		if !amt.IsZero() {
			out = append(out, Balance{Name: ccy, Amount: amt, Cash: true})
		}
	}
	for asset, qty := range b.holdings {
		if !qty.IsZero() {
			out = append(out, Balance{Name: asset, Amount: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cash != out[j].Cash {
			return out[i].Cash
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Account is a single-pair view of a CashBook.
type Account struct {
	book *CashBook
	pair Pair
}

// Account returns the view for pair.
func (b *CashBook) Account(pair Pair) *Account {
	return &Account{book: b, pair: pair}
}

func (a *Account) Pair() Pair                { return a.pair }
func (a *Account) Holdings() decimal.Decimal { return a.book.Holdings(a.pair.Base) }
func (a *Account) Cash() decimal.Decimal     { return a.book.Cash(a.pair.Quote) }

// Value returns cash plus holdings at price.
func (a *Account) Value(price decimal.Decimal) decimal.Decimal {
	return a.Cash().Add(a.Holdings().Mul(price))
}
