package goes

import (
	"fmt"
	"math"
	"strings"
)

// Scan cadence and typical compressed file sizes, used to predict the cost
// of a request before accepting it. Full disk scenes repeat on a per-item
// period. CONUS scenes start at fixed minute offsets (hh:01, hh:06, ...)
// independent of the item.

const (
	defaultL1bFDPeriodMin    = 10
	defaultL1bConusPeriodMin = 5
	defaultL2FDPeriodMin     = 20
	defaultL2ConusPeriodMin  = 5

	defaultL1bFDSizeMB    = 14.0
	defaultL1bConusSizeMB = 2.5
	defaultL2FDSizeMB     = 20.0
	defaultL2ConusSizeMB  = 10.0
)

// Visible bands compress far worse than the IR ones, band 02 worst of all.
var l1bFDSizeMB = map[string]float64{
	"01": 26, "02": 97, "03": 26, "04": 6.5, "05": 26, "06": 6.5,
	"07": 14, "08": 14, "09": 14, "10": 14, "11": 14, "12": 14,
	"13": 14, "14": 14, "15": 14, "16": 14,
}

var l1bConusSizeMB = map[string]float64{
	"01": 3.6, "02": 14, "03": 3.6, "04": 0.9, "05": 3.6, "06": 0.9,
	"07": 2.5, "08": 2.5, "09": 2.5, "10": 2.5, "11": 2.5, "12": 2.5,
	"13": 2.5, "14": 2.5, "15": 2.5, "16": 2.5,
}

var l2FDPeriodMin = map[string]int{
	"CMIP": 10, "MCMIP": 10, "ACHA": 10, "FDC": 10,
	"ACHT": 60, "LST": 60, "SST": 60, "DSR": 60, "RSR": 60,
}

var l2FDSizeMB = map[string]float64{
	"CMIP": 45, "MCMIP": 310, "ACHA": 9, "RRQPE": 2.5, "LST": 3, "TPW": 3.5,
}

var l2ConusSizeMB = map[string]float64{
	"CMIP": 4, "MCMIP": 42, "ACHA": 1.5,
}

// EstimateRequest carries the already validated fields an estimate needs.
type EstimateRequest struct {
	Level    string
	Domain   string
	Bands    []string
	Products []string
	// Fechas maps day keys (single or ranged) to inclusive time ranges.
	Fechas map[string][]string
}

// Estimate is the predicted cost of a request.
type Estimate struct {
	FileCount     int     `json:"archivos_estimados"`
	TotalSizeMB   float64 `json:"tamanio_estimado_mb"`
	TotalSizeGB   float64 `json:"tamanio_estimado_gb"`
	AverageFileMB float64 `json:"promedio_mb_por_archivo"`
}

// EstimateQuery predicts file count and volume for a request.
func EstimateQuery(req EstimateRequest) (Estimate, error) {
	items, err := estimateItems(req)
	if err != nil {
		return Estimate{}, err
	}

	var (
		count  int
		sizeMB float64
	)
	for key, ranges := range req.Fechas {
		days, err := ExpandDayKey(key)
		if err != nil {
			return Estimate{}, err
		}
		for _, rng := range ranges {
			start, end, err := ParseTimeRange(rng)
			if err != nil {
				return Estimate{}, err
			}
			for _, it := range items {
				n := len(days) * countScans(req.Domain, start, end, it.periodMin)
				count += n
				sizeMB += float64(n) * it.sizeMB
			}
		}
	}

	est := Estimate{
		FileCount:   count,
		TotalSizeMB: round2(sizeMB),
	}
	est.TotalSizeGB = round2(est.TotalSizeMB / 1024)
	if count > 0 {
		est.AverageFileMB = round2(est.TotalSizeMB / float64(count))
	}
	return est, nil
}

type estimateItem struct {
	periodMin int
	sizeMB    float64
}

func estimateItems(req EstimateRequest) ([]estimateItem, error) {
	level := strings.ToUpper(strings.TrimSpace(req.Level))
	conus := strings.EqualFold(strings.TrimSpace(req.Domain), "conus")

	bands := req.Bands
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	bands = ExpandBands(bands)

	var items []estimateItem
	switch level {
	case "L1B":
		for _, b := range bands {
			items = append(items, estimateItem{
				periodMin: pickInt(conus, nil, b, defaultL1bFDPeriodMin, defaultL1bConusPeriodMin),
				sizeMB:    pickFloat(conus, l1bFDSizeMB, l1bConusSizeMB, b, defaultL1bFDSizeMB, defaultL1bConusSizeMB),
			})
		}
	case "L2":
		products := req.Products
		if RequestedAllProducts(products) {
			products = ValidProducts()
		}
		for _, p := range products {
			base := ProductAlias(p)
			it := estimateItem{
				periodMin: pickInt(conus, l2FDPeriodMin, base, defaultL2FDPeriodMin, defaultL2ConusPeriodMin),
				sizeMB:    pickFloat(conus, l2FDSizeMB, l2ConusSizeMB, base, defaultL2FDSizeMB, defaultL2ConusSizeMB),
			}
			if strings.HasPrefix(base, "CMI") {
				for range bands {
					items = append(items, it)
				}
				continue
			}
			items = append(items, it)
		}
	default:
		return nil, fmt.Errorf("Nivel '%s' no es soportado", req.Level)
	}
	return items, nil
}

// countScans counts scan start minutes inside an inclusive range, walking
// through midnight when the range wraps. Full disk scans land on multiples
// of the item period. CONUS scans land on minutes ending in 1 or 6.
func countScans(domain string, start, end TimeOfDay, periodMin int) int {
	conus := strings.EqualFold(strings.TrimSpace(domain), "conus")
	match := func(m int) bool {
		if conus {
			last := m % 10
			return last == 1 || last == 6
		}
		return m%periodMin == 0
	}

	s, e := start.Minutes(), end.Minutes()
	count := 0
	if e >= s {
		for m := s; m <= e; m++ {
			if match(m) {
				count++
			}
		}
		return count
	}
	for m := s; m < 1440; m++ {
		if match(m) {
			count++
		}
	}
	for m := 0; m <= e; m++ {
		if match(m) {
			count++
		}
	}
	return count
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func pickInt(conus bool, fdTable map[string]int, key string, fdDefault, conusDefault int) int {
	if conus {
		return conusDefault
	}
	if v, ok := fdTable[key]; ok {
		return v
	}
	return fdDefault
}

func pickFloat(conus bool, fdTable, conusTable map[string]float64, key string, fdDefault, conusDefault float64) float64 {
	if conus {
		if v, ok := conusTable[key]; ok {
			return v
		}
		return conusDefault
	}
	if v, ok := fdTable[key]; ok {
		return v
	}
	return fdDefault
}
