package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type missingCatalog struct{}

func (missingCatalog) Price(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("env REWARDS_CATALOG_URL is not set")
}
