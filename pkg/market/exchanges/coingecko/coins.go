package coingecko

import (
	"context"
	"fmt"

	"eod-collector/pkg/market"
)

const coinsListPath = "/coins/list"

// CoinsList returns the provider's full coin listing.
func (c *Client) CoinsList(ctx context.Context) ([]market.Coin, error) {
	var coins []market.Coin
	if err := c.getJSON(ctx, coinsListPath, nil, &coins); err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		return nil, fmt.Errorf("coingecko: coins list: %w", market.ErrEmptyResponse)
	}
	return coins, nil
}
