package ercotapi

import (
	"context"
	"net/url"
	"time"

	"gridflow/models"
)

// Report API endpoints used by the price comparison pipeline.
const (
	endpointRTMSettlementPrices = "/np6-905-cd/spp_node_zone_hub"
	endpointDAMSettlementPrices = "/np4-190-cd/dam_stlmnt_pnt_prices"
)

// RTMSettlementPrices pulls the real-time settlement point prices for every
// hour and 15-minute interval of one delivery date, load zones only.
func (c *Client) RTMSettlementPrices(ctx context.Context, day time.Time) (*models.Table, error) {
	filters := url.Values{}
	filters.Set("deliveryDateFrom", day.Format("2006-01-02"))
	filters.Set("deliveryDateTo", day.Format("2006-01-02"))
	filters.Set("deliveryHourFrom", "1")
	filters.Set("deliveryHourTo", "24")
	filters.Set("deliveryIntervalFrom", "1")
	filters.Set("deliveryIntervalTo", "4")
	filters.Set("settlementPointType", "LZ")
	return c.QueryAllPages(ctx, endpointRTMSettlementPrices, filters, c.config.API.PageSize)
}

// DAMSettlementPrices pulls the day-ahead settlement point prices for one
// delivery date.
func (c *Client) DAMSettlementPrices(ctx context.Context, day time.Time) (*models.Table, error) {
	filters := url.Values{}
	filters.Set("deliveryDateFrom", day.Format("2006-01-02"))
	filters.Set("deliveryDateTo", day.Format("2006-01-02"))
	return c.QueryAllPages(ctx, endpointDAMSettlementPrices, filters, c.config.API.PageSize)
}
