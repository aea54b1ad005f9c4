package pipeline

import (
	"context"
	"fmt"
	"time"

	"gridflow/logger"
	"gridflow/models"
	"gridflow/processor"
	"gridflow/reader/portal"
	"gridflow/writer"
)

// Source-native column names on the day-ahead price reports.
const (
	colPriceDate     = "DeliveryDate"
	colPriceHour     = "HourEnding"
	colAncillaryType = "AncillaryType"
	colMCPC          = "MCPC"
	colAPIDate       = "deliveryDate"
	colAPIHour       = "deliveryHour"
	colAPIHourEnding = "hourEnding"
	colAPIPoint      = "settlementPoint"
	colAPIPrice      = "settlementPointPrice"
)

// Product pages list the most recent posting first; today's report is the
// first matching link, yesterday's final posting the third.
const (
	linkIndexToday     = 0
	linkIndexYesterday = 2
)

// runPhase2 builds the price comparison artifact: day-ahead ancillary and
// settlement point prices for today and yesterday from the portal, plus
// yesterday's real-time prices and the day-ahead/real-time spread when API
// credentials are available.
func (p *Pipeline) runPhase2(ctx context.Context, start time.Time) (string, error) {
	products := p.config.Portal.Products

	asToday, err := p.fetchPriceCSV(ctx, "dam_ancillary_today", products.DAMClearingPrices, linkIndexToday)
	if err != nil {
		return "", err
	}
	asYesterday, err := p.fetchPriceCSV(ctx, "dam_ancillary_yesterday", products.DAMClearingPrices, linkIndexYesterday)
	if err != nil {
		return "", err
	}
	sppToday, err := p.fetchPriceCSV(ctx, "dam_spp_today", products.DAMSettlementPrices, linkIndexToday)
	if err != nil {
		return "", err
	}
	sppYesterday, err := p.fetchPriceCSV(ctx, "dam_spp_yesterday", products.DAMSettlementPrices, linkIndexYesterday)
	if err != nil {
		return "", err
	}

	for id, tbl := range map[string]*models.Table{
		"dam_ancillary_today":     asToday,
		"dam_ancillary_yesterday": asYesterday,
		"dam_spp_today":           sppToday,
		"dam_spp_yesterday":       sppYesterday,
	} {
		if err := processor.Normalize(tbl, colPriceDate, colPriceHour); err != nil {
			return "", fmt.Errorf("report %s: %w", id, err)
		}
	}

	sheets := []writer.Sheet{
		{Name: "AS Today", Table: asToday},
		{Name: "AS Yesterday", Table: asYesterday},
		{Name: "SPP Today", Table: sppToday},
		{Name: "SPP Yesterday", Table: sppYesterday},
	}

	yesterday := start.AddDate(0, 0, -1)
	rtm, dam := p.fetchRealTimePrices(ctx, yesterday)
	if !rtm.Empty() {
		sheets = append(sheets, writer.Sheet{Name: "RTM Yesterday", Table: rtm})
	}
	if !dam.Empty() {
		sheets = append(sheets, writer.Sheet{Name: "SPP Yesterday API", Table: dam})
	}

	// Sheets carry the full report tables; the configured settlement points
	// narrow only the spread inputs.
	damFocus := processor.FilterIn(dam, processor.ColSettlementPoint, p.config.Phase2.SettlementPoints)
	rtmFocus := processor.FilterIn(rtm, processor.ColSettlementPoint, p.config.Phase2.SettlementPoints)
	if !rtmFocus.Empty() && !damFocus.Empty() {
		spread, err := processor.DARTSpread(damFocus, rtmFocus, p.config.Phase2.DartPoint)
		if err != nil {
			return "", fmt.Errorf("dart spread: %w", err)
		}
		sheets = append(sheets, writer.Sheet{Name: "DART Spread", Table: spread})
	}

	p.log.LogMetric("pipeline", "rows_joined", int64(sppToday.Len()+sppYesterday.Len()), "gauge", logger.Fields{"phase": "phase2"})
	return p.renderer.Write("phase2_prices", start, sheets...)
}

func (p *Pipeline) fetchPriceCSV(ctx context.Context, id, pageURL string, index int) (*models.Table, error) {
	body, name, err := p.fetcher.ResolveAndFetch(ctx, portal.ReportRequest{
		ID:       id,
		PageURL:  pageURL,
		Pattern:  portal.LinkPattern{Text: "zip", Index: index},
		Archived: true,
	})
	if err != nil {
		return nil, err
	}
	tbl, err := portal.ParseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("report %s (%s): %w", id, name, err)
	}
	p.log.LogMetric("pipeline", "reports_fetched", 1, "counter", logger.Fields{"report": id})
	return tbl, nil
}

// fetchRealTimePrices pulls yesterday's real-time and day-ahead settlement
// prices from the report API. This source is best-effort: missing
// credentials or an API failure yield empty tables and the artifact is
// produced without the price-spread sheets.
func (p *Pipeline) fetchRealTimePrices(ctx context.Context, day time.Time) (rtm, dam *models.Table) {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{
		"day": day.Format("2006-01-02"),
	})

	rtm, err := p.api.RTMSettlementPrices(ctx, day)
	if err != nil {
		log.WithError(err).Warn("real-time price pull failed, continuing without")
		return models.NewTable(), models.NewTable()
	}
	if !rtm.Empty() {
		if err := canonicalizeAPIPrices(rtm, colAPIHour); err != nil {
			log.WithError(err).Warn("real-time price table unusable, continuing without")
			return models.NewTable(), models.NewTable()
		}
	}

	dam, err = p.api.DAMSettlementPrices(ctx, day)
	if err != nil {
		log.WithError(err).Warn("day-ahead API price pull failed, spread unavailable")
		return rtm, models.NewTable()
	}
	if !dam.Empty() {
		if err := canonicalizeAPIPrices(dam, colAPIHourEnding); err != nil {
			log.WithError(err).Warn("day-ahead API price table unusable, spread unavailable")
			return rtm, models.NewTable()
		}
	}
	return rtm, dam
}

// canonicalizeAPIPrices renames the API's camelCase price columns onto the
// names the portal reports use and computes the canonical timestamp.
func canonicalizeAPIPrices(tbl *models.Table, hourCol string) error {
	if err := tbl.RenameCols(map[string]string{
		colAPIPoint: processor.ColSettlementPoint,
		colAPIPrice: processor.ColSettlementPrice,
	}); err != nil {
		return err
	}
	return processor.Normalize(tbl, colAPIDate, hourCol)
}
