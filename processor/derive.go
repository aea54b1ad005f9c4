package processor

import (
	"fmt"
	"sort"

	"gridflow/models"
)

// Column names on the joined phase-1 table. The inputs keep the names the
// rename maps in the pipeline give them; the derived columns are added here.
const (
	ColDemand          = "Forecasted Demand"
	ColWindSupply      = "Forecasted Wind Supply"
	ColSolarSupply     = "Forecasted Solar Supply"
	ColRenewables      = "Forecasted Renewables Output"
	ColDispatchable    = "Dispatchable Supply"
	ColNetLoad         = "Forecasted Net Load"
	ColNetThermalCap   = "Forecasted Net Thermal Capacity"
	ColReserveMargin   = "Forecasted Thermal Reserve Margin"
	ColTotalOutages    = "total_resource_outages"
	ColOutagesSouth    = "TotalResourceMWZoneSouth"
	ColOutagesNorth    = "TotalResourceMWZoneNorth"
	ColOutagesWest     = "TotalResourceMWZoneWest"
	ColOutagesHouston  = "TotalResourceMWZoneHouston"
	ColSettlementPoint = "SettlementPoint"
	ColSettlementPrice = "SettlementPointPrice"
	ColDARTSpread      = "DART Spread"
)

// DeriveForecastMetrics adds the derived forecast columns row by row.
// installedCapacity is the scalar from the capacity-by-resource-category
// workbook, broadcast to every row. Each formula is a pure function of the
// row it is computed on, so a conversion failure names the offending column.
func DeriveForecastMetrics(tbl *models.Table, installedCapacity float64) error {
	for i, row := range tbl.Rows {
		demand, err := row.Float(ColDemand)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		wind, err := row.Float(ColWindSupply)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		solar, err := row.Float(ColSolarSupply)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		outages := 0.0
		for _, col := range []string{ColOutagesSouth, ColOutagesNorth, ColOutagesWest, ColOutagesHouston} {
			v, err := row.Float(col)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			outages += v
		}

		renewables := wind + solar
		netLoad := demand - renewables
		netThermal := installedCapacity - outages

		row[ColRenewables] = renewables
		row[ColDispatchable] = netLoad
		row[ColNetLoad] = netLoad
		row[ColTotalOutages] = outages
		row[ColNetThermalCap] = netThermal
		row[ColReserveMargin] = netThermal - netLoad
	}
	for _, c := range []string{
		ColRenewables, ColDispatchable, ColNetLoad,
		ColTotalOutages, ColNetThermalCap, ColReserveMargin,
	} {
		tbl.AddCol(c)
	}
	return nil
}

// HourlyMean reduces sub-hourly rows to one row per group with the mean of
// valueCol. Group keys are carried through unchanged; output rows keep the
// first-seen order of their groups.
func HourlyMean(tbl *models.Table, groupKeys []string, valueCol string) (*models.Table, error) {
	type acc struct {
		row   models.Row
		sum   float64
		count int
	}
	order := make([]string, 0)
	groups := make(map[string]*acc)

	for i, row := range tbl.Rows {
		v, err := row.Float(valueCol)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		k := joinKey(row, groupKeys)
		g, ok := groups[k]
		if !ok {
			base := make(models.Row, len(groupKeys)+1)
			for _, gk := range groupKeys {
				base[gk] = row[gk]
			}
			g = &acc{row: base}
			groups[k] = g
			order = append(order, k)
		}
		g.sum += v
		g.count++
	}

	out := models.NewTable(append(append([]string{}, groupKeys...), valueCol)...)
	for _, k := range order {
		g := groups[k]
		g.row[valueCol] = g.sum / float64(g.count)
		out.Rows = append(out.Rows, g.row)
	}
	return out, nil
}

// DARTSpread computes day-ahead minus real-time price per hour for one
// settlement point. The real-time table carries sub-hourly rows and is
// reduced to an hourly mean first; hours present in only one series are
// dropped. The result has one row per overlapping hour, ordered by time.
func DARTSpread(dam, rtm *models.Table, point string) (*models.Table, error) {
	damPoint := Filter(dam, ColSettlementPoint, point)
	rtmPoint := Filter(rtm, ColSettlementPoint, point)

	rtmHourly, err := HourlyMean(rtmPoint, []string{ColDatetime, ColSettlementPoint}, ColSettlementPrice)
	if err != nil {
		return nil, fmt.Errorf("real-time hourly mean: %w", err)
	}

	rtmByHour := make(map[string]float64, rtmHourly.Len())
	for _, row := range rtmHourly.Rows {
		price, err := row.Float(ColSettlementPrice)
		if err != nil {
			return nil, err
		}
		rtmByHour[joinKey(row, []string{ColDatetime})] = price
	}

	out := models.NewTable(ColDatetime, ColSettlementPoint, "DAM Price", "RTM Price", ColDARTSpread)
	for _, row := range damPoint.Rows {
		rtPrice, ok := rtmByHour[joinKey(row, []string{ColDatetime})]
		if !ok {
			continue
		}
		daPrice, err := row.Float(ColSettlementPrice)
		if err != nil {
			return nil, err
		}
		ts, err := row.Time(ColDatetime)
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, models.Row{
			ColDatetime:        ts,
			ColSettlementPoint: point,
			"DAM Price":        daPrice,
			"RTM Price":        rtPrice,
			ColDARTSpread:      daPrice - rtPrice,
		})
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		a, _ := out.Rows[i].Time(ColDatetime)
		b, _ := out.Rows[j].Time(ColDatetime)
		return a.Before(b)
	})
	return out, nil
}
