package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type PriceResponse struct {
	ItemID    string          `json:"item_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Price     decimal.Decimal `json:"price"`
}

// Клиент каталога: цена товара или варианта
type CatalogClient struct {
	client *http.Client
	base   string
}

func NewCatalogClient(base string, timeout time.Duration) (*CatalogClient, error) {
	if base == "" {
		return nil, fmt.Errorf("env REWARDS_CATALOG_URL is not set")
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &CatalogClient{client, base}, nil
}

func (c *CatalogClient) Price(ctx context.Context, itemID string, variantID string) (decimal.Decimal, error) {
	u := c.base + "/items/" + url.PathEscape(itemID) + "/price"
	if variantID != "" {
		u += "?variant=" + url.QueryEscape(variantID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf("item %s %w", itemID, model.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("catalog service HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}
	price := &PriceResponse{}
	if err := json.Unmarshal(body, price); err != nil {
		return decimal.Zero, err
	}
	if price.Price.IsNegative() {
		return decimal.Zero, fmt.Errorf("catalog: negative price for %s", itemID)
	}
	return price.Price, nil
}
