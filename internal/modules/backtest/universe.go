package backtest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/backtester/internal/modules/panels"
)

// ErrNoMarketCapData is returned when no market-cap row precedes a rebalance date.
var ErrNoMarketCapData = errors.New("no market cap data before rebalance date")

// Member is one selected security with the cap that ranked it.
type Member struct {
	Symbol    string  `json:"symbol" msgpack:"symbol"`
	MarketCap float64 `json:"market_cap" msgpack:"market_cap"`
}

// Universe is the ranked selection for one rebalance date.
type Universe struct {
	CapDate time.Time `json:"cap_date" msgpack:"cap_date"`
	Members []Member  `json:"members" msgpack:"members"`
}

// Symbols returns the member identifiers in rank order.
func (u Universe) Symbols() []string {
	out := make([]string, len(u.Members))
	for i, m := range u.Members {
		out[i] = m.Symbol
	}
	return out
}

// SelectUniverse ranks the securities of the latest market-cap row strictly
// before date and keeps the n largest. Same-day cap rows are ignored.
//
// Null caps are skipped, so fewer than n members may be returned. Securities
// for which eligible returns false are skipped too; pass nil to accept all.
// Equal caps are ordered by identifier ascending.
func SelectUniverse(caps *panels.Panel, date time.Time, eligible func(string) bool, n int) (Universe, error) {
	row, ok := caps.LatestBefore(date)
	if !ok {
		return Universe{}, fmt.Errorf("%w: %s", ErrNoMarketCapData, panels.FormatDate(date))
	}

	members := make([]Member, 0, caps.Width())
	for j, symbol := range caps.Columns() {
		v, ok := caps.At(row, j).Get()
		if !ok {
			continue
		}
		if eligible != nil && !eligible(symbol) {
			continue
		}
		members = append(members, Member{Symbol: symbol, MarketCap: v})
	}

	sort.Slice(members, func(a, b int) bool {
		if members[a].MarketCap != members[b].MarketCap {
			return members[a].MarketCap > members[b].MarketCap
		}
		return members[a].Symbol < members[b].Symbol
	})

	if len(members) > n {
		members = members[:n]
	}

	return Universe{CapDate: caps.Date(row), Members: members}, nil
}
