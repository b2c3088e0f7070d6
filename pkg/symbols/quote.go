package symbols

import (
	"fmt"
	"sort"
	"strings"

	"eod-collector/pkg/market"
)

// DefaultQuoteAssets lists the quote currencies recognised on Binance spot pairs.
var DefaultQuoteAssets = []string{
	"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB", "TRX",
	"XRP", "TUSD", "PAX", "EUR", "GBP", "AUD", "TRY",
}

// sortQuotes returns an upper-cased, de-duplicated copy ordered longest first
// so that USDT is tried before a shorter overlapping suffix.
func sortQuotes(quotes []string) []string {
	seen := make(map[string]struct{}, len(quotes))
	out := make([]string, 0, len(quotes))
	for _, q := range quotes {
		q = strings.ToUpper(strings.TrimSpace(q))
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// splitPair strips the first matching quote from sorted. Both results are upper case.
func splitPair(pair string, sorted []string) (base, quote string, err error) {
	symbol := strings.ToUpper(strings.TrimSpace(pair))
	for _, q := range sorted {
		if !strings.HasSuffix(symbol, q) {
			continue
		}
		base = strings.TrimSuffix(symbol, q)
		if base == "" {
			break
		}
		return base, q, nil
	}
	return "", "", fmt.Errorf("%w: no quote suffix in %q", market.ErrNotResolvable, pair)
}
