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

// Source-native column names on the forecast reports.
const (
	colSolarWindDate = "DELIVERY_DATE"
	colSolarWindHour = "HOUR_ENDING"
	colCopHSL        = "COP_HSL_SYSTEM_WIDE"

	colSysFcstDate = "DeliveryDate"
	colSysFcstHour = "HourEnding"
	colSystemTotal = "SystemTotal"
	colOutagesDate = "Date"
	colOutagesHour = "HourEnding"
)

// runPhase1 builds the daily forecast artifact: solar, wind, outage and
// system forecasts joined per hour, enriched with the derived supply and
// reserve metrics, broadcast against the installed-capacity scalar from
// the resource adequacy workbook.
func (p *Pipeline) runPhase1(ctx context.Context, start time.Time) (string, error) {
	products := p.config.Portal.Products

	solar, err := p.fetchForecastCSV(ctx, "solar_forecast", products.SolarForecast)
	if err != nil {
		return "", err
	}
	wind, err := p.fetchForecastCSV(ctx, "wind_forecast", products.WindForecast)
	if err != nil {
		return "", err
	}
	sysFcst, err := p.fetchForecastCSV(ctx, "system_forecast", products.SystemForecast)
	if err != nil {
		return "", err
	}
	outages, err := p.fetchForecastCSV(ctx, "outage_capacity", products.OutageCapacity)
	if err != nil {
		return "", err
	}

	moraBytes, _, err := p.fetcher.ResolveAndFetch(ctx, portal.ReportRequest{
		ID:      "resource_adequacy",
		PageURL: products.ResourceAdequacy,
		Pattern: portal.LinkPattern{Attr: "MonthlyOutlook"},
	})
	if err != nil {
		return "", err
	}
	capacity, err := processor.CapacityConstant(moraBytes)
	if err != nil {
		return "", fmt.Errorf("resource adequacy workbook: %w", err)
	}

	joined, err := buildForecastTable(solar, wind, sysFcst, outages, capacity)
	if err != nil {
		return "", err
	}

	p.log.WithComponent("pipeline").WithFields(logger.Fields{
		"rows":     joined.Len(),
		"capacity": capacity,
	}).Info("forecast table built")
	p.log.LogMetric("pipeline", "rows_joined", int64(joined.Len()), "gauge", logger.Fields{"phase": "phase1"})

	return p.renderer.Write("phase1_forecast", start, writer.Sheet{Name: "Forecast", Table: joined})
}

func (p *Pipeline) fetchForecastCSV(ctx context.Context, id, pageURL string) (*models.Table, error) {
	body, name, err := p.fetcher.ResolveAndFetch(ctx, portal.ReportRequest{
		ID:       id,
		PageURL:  pageURL,
		Pattern:  portal.LinkPattern{Text: "zip"},
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

// buildForecastTable normalizes the four hourly reports onto the shared
// timestamp, joins them and derives the forecast metrics. Each right-hand
// table is cut down to its value columns before joining so only the
// explicitly renamed measurements travel into the result.
func buildForecastTable(solar, wind, sysFcst, outages *models.Table, capacity float64) (*models.Table, error) {
	if err := processor.Normalize(solar, colSolarWindDate, colSolarWindHour); err != nil {
		return nil, fmt.Errorf("solar forecast: %w", err)
	}
	if err := processor.Normalize(wind, colSolarWindDate, colSolarWindHour); err != nil {
		return nil, fmt.Errorf("wind forecast: %w", err)
	}
	if err := processor.Normalize(sysFcst, colSysFcstDate, colSysFcstHour); err != nil {
		return nil, fmt.Errorf("system forecast: %w", err)
	}
	if err := processor.Normalize(outages, colOutagesDate, colOutagesHour); err != nil {
		return nil, fmt.Errorf("outage capacity: %w", err)
	}

	left, err := solar.Select(processor.ColDatetime, processor.ColHourEnding, colCopHSL)
	if err != nil {
		return nil, fmt.Errorf("solar forecast: %w", err)
	}
	if err := left.RenameCols(map[string]string{colCopHSL: processor.ColSolarSupply}); err != nil {
		return nil, fmt.Errorf("solar forecast: %w", err)
	}

	windCut, err := wind.Select(processor.ColDatetime, colCopHSL)
	if err != nil {
		return nil, fmt.Errorf("wind forecast: %w", err)
	}
	outagesCut, err := outages.Select(processor.ColDatetime,
		processor.ColOutagesSouth, processor.ColOutagesNorth,
		processor.ColOutagesWest, processor.ColOutagesHouston)
	if err != nil {
		return nil, fmt.Errorf("outage capacity: %w", err)
	}
	sysCut, err := sysFcst.Select(processor.ColDatetime, colSystemTotal)
	if err != nil {
		return nil, fmt.Errorf("system forecast: %w", err)
	}

	keys := []string{processor.ColDatetime}
	joined, err := processor.Join(left,
		processor.JoinStep{
			Right: windCut, LeftKeys: keys, RightKeys: keys,
			Rename: map[string]string{colCopHSL: processor.ColWindSupply},
		},
		processor.JoinStep{Right: outagesCut, LeftKeys: keys, RightKeys: keys},
		processor.JoinStep{
			Right: sysCut, LeftKeys: keys, RightKeys: keys,
			Rename: map[string]string{colSystemTotal: processor.ColDemand},
		},
	)
	if err != nil {
		return nil, err
	}

	if err := processor.DeriveForecastMetrics(joined, capacity); err != nil {
		return nil, err
	}
	return joined, nil
}
