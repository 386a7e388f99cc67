// Package aqi maps pollutant concentrations to the CPCB Air Quality Index
// using piecewise-linear breakpoint interpolation per pollutant.
package aqi

import (
	"math"

	"aqi-pipeline/internal/models"
)

// breakpoint maps a concentration range onto an index sub-range.
type breakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

// CPCB breakpoint tables. Concentrations in µg/m³ except CO in mg/m³.
var (
	pm25Breakpoints = []breakpoint{
		{0, 30, 0, 50}, {31, 60, 51, 100}, {61, 90, 101, 200},
		{91, 120, 201, 300}, {121, 250, 301, 400}, {251, 500, 401, 500},
	}
	pm10Breakpoints = []breakpoint{
		{0, 50, 0, 50}, {51, 100, 51, 100}, {101, 250, 101, 200},
		{251, 350, 201, 300}, {351, 430, 301, 400}, {431, 600, 401, 500},
	}
	no2Breakpoints = []breakpoint{
		{0, 40, 0, 50}, {41, 80, 51, 100}, {81, 180, 101, 200},
		{181, 280, 201, 300}, {281, 400, 301, 400}, {401, 600, 401, 500},
	}
	so2Breakpoints = []breakpoint{
		{0, 40, 0, 50}, {41, 80, 51, 100}, {81, 380, 101, 200},
		{381, 800, 201, 300}, {801, 1600, 301, 400}, {1601, 2000, 401, 500},
	}
	coBreakpoints = []breakpoint{
		{0, 1.0, 0, 50}, {1.1, 2.0, 51, 100}, {2.1, 10.0, 101, 200},
		{10.1, 17.0, 201, 300}, {17.1, 34.0, 301, 400}, {34.1, 50.0, 401, 500},
	}
	o3Breakpoints = []breakpoint{
		{0, 50, 0, 50}, {51, 100, 51, 100}, {101, 168, 101, 200},
		{169, 208, 201, 300}, {209, 748, 301, 400}, {749, 1000, 401, 500},
	}
)

// subIndex interpolates a concentration within its breakpoint table.
// Concentrations outside the defined domain (negative, NaN, above the top
// breakpoint) return nil: invalid, never a fabricated value.
func subIndex(c float64, table []breakpoint) *float64 {
	if math.IsNaN(c) || c < 0 || c > table[len(table)-1].cHigh {
		return nil
	}
	for _, bp := range table {
		if c <= bp.cHigh {
			// Concentrations in the gap below this segment take iLow,
			// keeping the mapping monotonic across segment boundaries.
			if c < bp.cLow {
				v := bp.iLow
				return &v
			}
			v := (bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(c-bp.cLow) + bp.iLow
			return &v
		}
	}
	return nil
}

// Categorize maps an AQI value to its CPCB category.
func Categorize(aqi float64) models.Category {
	switch {
	case aqi <= 50:
		return models.CategoryGood
	case aqi <= 100:
		return models.CategorySatisfactory
	case aqi <= 200:
		return models.CategoryModerate
	case aqi <= 300:
		return models.CategoryPoor
	case aqi <= 400:
		return models.CategoryVeryPoor
	default:
		return models.CategorySevere
	}
}

// Computation is the full AQI result for a single reading.
type Computation struct {
	SubIndices        models.SubIndices
	AQI               *int
	Category          models.Category
	DominantPollutant string
	Valid             bool
}

// Compute derives sub-indices for every pollutant, takes the maximum valid
// sub-index as the overall AQI and names the pollutant that produced it.
// When no pollutant lies within its breakpoint domain the computation is
// marked invalid and AQI stays nil.
func Compute(r models.Reading) Computation {
	sub := models.SubIndices{
		PM25: subIndex(r.PM25, pm25Breakpoints),
		PM10: subIndex(r.PM10, pm10Breakpoints),
		O3:   subIndex(r.O3, o3Breakpoints),
		NO2:  subIndex(r.NO2, no2Breakpoints),
		SO2:  subIndex(r.SO2, so2Breakpoints),
		CO:   subIndex(r.CO, coBreakpoints),
	}

	candidates := []struct {
		name  string
		value *float64
	}{
		{"pm2_5", sub.PM25},
		{"pm10", sub.PM10},
		{"ozone", sub.O3},
		{"nitrogen_dioxide", sub.NO2},
		{"sulphur_dioxide", sub.SO2},
		{"carbon_monoxide", sub.CO},
	}

	var (
		best     float64
		dominant string
		found    bool
	)
	for _, c := range candidates {
		if c.value == nil {
			continue
		}
		if !found || *c.value > best {
			best = *c.value
			dominant = c.name
			found = true
		}
	}

	comp := Computation{SubIndices: sub}
	if !found {
		return comp
	}

	rounded := int(math.Round(best))
	comp.AQI = &rounded
	comp.Category = Categorize(best)
	comp.DominantPollutant = dominant
	comp.Valid = true
	return comp
}
