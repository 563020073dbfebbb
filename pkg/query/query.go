package query

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lanot/goesrecover/pkg/goes"
)

// Request is a submitted retrieval request, exactly as it arrives on the
// wire. Date keys are YYYYMMDD or YYYYMMDD-YYYYMMDD ranges, time ranges are
// HH:MM or HH:MM-HH:MM, both ends inclusive.
type Request struct {
	Satellite   string              `json:"sat,omitempty"`
	Sensor      string              `json:"sensor,omitempty"`
	Level       string              `json:"nivel,omitempty"`
	Domain      string              `json:"dominio"`
	Products    []string            `json:"productos,omitempty"`
	Bands       []string            `json:"bandas,omitempty"`
	Fechas      map[string][]string `json:"fechas"`
	CreatedBy   string              `json:"creado_por,omitempty"`
	Description string              `json:"descripcion,omitempty"`
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.Products = append([]string(nil), r.Products...)
	out.Bands = append([]string(nil), r.Bands...)
	if r.Fechas != nil {
		out.Fechas = make(map[string][]string, len(r.Fechas))
		for k, v := range r.Fechas {
			out.Fechas[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// Query is the canonical form a request is normalized into. Day keys are
// julian YYYYJJJ, bands are expanded, and the verbatim request is retained
// for the recovery builder.
type Query struct {
	Satellite       string              `json:"satelite"`
	Sensor          string              `json:"sensor"`
	Level           string              `json:"nivel"`
	Domain          string              `json:"dominio"`
	Products        []string            `json:"productos,omitempty"`
	Bands           []string            `json:"bandas,omitempty"`
	Fechas          map[string][]string `json:"fechas"`
	CreatedBy       string              `json:"creado_por,omitempty"`
	TotalHours      float64             `json:"total_horas"`
	TotalDays       int                 `json:"total_fechas_expandidas"`
	OriginalRequest *Request            `json:"original_request,omitempty"`
}

// Summary is the short form returned on acceptance.
type Summary struct {
	Satellite  string  `json:"satelite"`
	Level      string  `json:"nivel"`
	Domain     string  `json:"dominio"`
	TotalHours float64 `json:"total_horas"`
	TotalDays  int     `json:"total_fechas_expandidas"`
}

func (q *Query) Summary() Summary {
	return Summary{
		Satellite:  q.Satellite,
		Level:      q.Level,
		Domain:     q.Domain,
		TotalHours: q.TotalHours,
		TotalDays:  q.TotalDays,
	}
}

// DaysSorted returns the expanded julian day keys in ascending order.
func (q *Query) DaysSorted() []string {
	days := make([]string, 0, len(q.Fechas))
	for d := range q.Fechas {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// FirstDay returns the earliest day the query covers.
func (q *Query) FirstDay() (time.Time, error) {
	days := q.DaysSorted()
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("la consulta no tiene fechas")
	}
	return goes.ParseDay(days[0])
}

// RequiresBands reports whether bands participate in file matching.
func (q *Query) RequiresBands() bool {
	return goes.QueryRequiresBands(q.Level, q.Products)
}

// OriginalBands returns the band list exactly as submitted.
func (q *Query) OriginalBands() []string {
	if q.OriginalRequest == nil {
		return nil
	}
	return q.OriginalRequest.Bands
}

// OriginalProducts returns the product list exactly as submitted.
func (q *Query) OriginalProducts() []string {
	if q.OriginalRequest == nil {
		return nil
	}
	return q.OriginalRequest.Products
}

var levelCanonical = map[string]string{
	"l1b": "L1b",
	"l2":  "L2",
}

// Normalize validates a request and produces its canonical query. now
// anchors the future-date check.
func Normalize(req *Request, now time.Time) (*Query, error) {
	if req == nil {
		return nil, fmt.Errorf("la solicitud está vacía")
	}

	sat := strings.ToUpper(strings.TrimSpace(req.Satellite))
	if sat == "" {
		sat = goes.DefaultSatellite
	}
	if !goes.IsValidSatellite(sat) {
		return nil, fmt.Errorf("Satélite '%s' no es soportado o es inválido", req.Satellite)
	}

	sensor := strings.ToLower(strings.TrimSpace(req.Sensor))
	if sensor == "" {
		sensor = goes.DefaultSensor
	}
	if !goes.IsValidSensor(sensor) {
		return nil, fmt.Errorf("Sensor '%s' no es soportado", req.Sensor)
	}

	level, ok := levelCanonical[strings.ToLower(strings.TrimSpace(req.Level))]
	if strings.TrimSpace(req.Level) == "" {
		level = goes.DefaultLevel
	} else if !ok {
		return nil, fmt.Errorf("Nivel '%s' no es soportado", req.Level)
	}

	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" {
		return nil, fmt.Errorf("El campo 'dominio' es obligatorio")
	}
	if !goes.IsValidDomain(domain) {
		return nil, fmt.Errorf("Dominio '%s' no es soportado", req.Domain)
	}

	products := make([]string, 0, len(req.Products))
	for _, p := range req.Products {
		up := strings.ToUpper(strings.TrimSpace(p))
		if !goes.IsValidProduct(up) {
			return nil, fmt.Errorf("Producto '%s' no es soportado", p)
		}
		products = append(products, up)
	}

	bands, err := goes.ValidateBands(req.Bands)
	if err != nil {
		return nil, err
	}
	if len(bands) == 0 {
		bands = goes.DefaultBands()
	} else {
		bands = goes.ExpandBands(bands)
	}

	if len(req.Fechas) == 0 {
		return nil, fmt.Errorf("Se requiere al menos una fecha")
	}

	today := now.UTC().Truncate(24 * time.Hour)
	fechas := make(map[string][]string, len(req.Fechas))
	totalMinutes := 0.0
	for key, ranges := range req.Fechas {
		if !isYMDKey(key) {
			return nil, fmt.Errorf("Fecha '%s' inválida", key)
		}
		days, err := goes.ExpandDayKey(key)
		if err != nil {
			return nil, fmt.Errorf("Fecha '%s' inválida", key)
		}
		last, _ := goes.ParseDay(days[len(days)-1])
		if last.After(today) {
			return nil, fmt.Errorf("Fecha '%s' está en el futuro y no es válida", key)
		}

		for _, rng := range ranges {
			start, end, err := goes.ParseTimeRange(rng)
			if err != nil || end.Minutes() < start.Minutes() {
				return nil, fmt.Errorf("Horario '%s' inválido", rng)
			}
			totalMinutes += float64(len(days) * (end.Minutes() - start.Minutes()))
		}

		for _, day := range days {
			t, _ := goes.ParseDay(day)
			julian := t.Format("2006002")
			fechas[julian] = append(fechas[julian], ranges...)
		}
	}

	return &Query{
		Satellite:       sat,
		Sensor:          sensor,
		Level:           level,
		Domain:          domain,
		Products:        products,
		Bands:           bands,
		Fechas:          fechas,
		CreatedBy:       req.CreatedBy,
		TotalHours:      round2(totalMinutes / 60),
		TotalDays:       len(fechas),
		OriginalRequest: req.Clone(),
	}, nil
}

func isYMDKey(key string) bool {
	for _, part := range strings.Split(strings.TrimSpace(key), "-") {
		if len(part) != 8 {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
