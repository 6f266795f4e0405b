package testing

import (
	"fmt"
	"strings"
	"time"
)

// PricesCSV is a small wide price table: three trading days in January and
// one in February, so a run rebalances twice.
const PricesCSV = `Date,AAA,BBB,CCC
2024-01-02,100,50,20
2024-01-03,110,50,
2024-01-04,99,55,21
2024-02-01,99,60,22
`

// MarketCapsCSV precedes PricesCSV by one row and re-ranks at month end.
const MarketCapsCSV = `Date,AAA,BBB,CCC,DDD
2023-12-29,300,200,100,50
2024-01-31,100,200,300,NaN
`

// GeneratePricesCSV builds a wide price CSV of days weekdays starting at start
// for the given symbols. Symbol j's price on day i is 100 + (j+1)*i.
func GeneratePricesCSV(start time.Time, days int, symbols []string) string {
	var b strings.Builder
	b.WriteString("Date," + strings.Join(symbols, ",") + "\n")

	written := 0
	for day := start; written < days; day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		b.WriteString(day.Format("2006-01-02"))
		for j := range symbols {
			fmt.Fprintf(&b, ",%d", 100+(j+1)*written)
		}
		b.WriteString("\n")
		written++
	}
	return b.String()
}

// GenerateMarketCapsCSV builds a single-row cap table dated the day before
// start, ranking symbols in the given order.
func GenerateMarketCapsCSV(start time.Time, symbols []string) string {
	var b strings.Builder
	b.WriteString("Date," + strings.Join(symbols, ",") + "\n")
	b.WriteString(start.AddDate(0, 0, -1).Format("2006-01-02"))
	for j := range symbols {
		fmt.Fprintf(&b, ",%d", 1000*(len(symbols)-j))
	}
	b.WriteString("\n")
	return b.String()
}
