package goes

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenAll selects every band or every product in a request.
const TokenAll = "ALL"

// GOES19OperationalDate is the cutover after which the GOES-EAST alias
// resolves to GOES-19 instead of GOES-16.
var GOES19OperationalDate = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

const (
	DefaultSatellite = "GOES-EAST"
	DefaultSensor    = "abi"
	DefaultLevel     = "L1b"
)

var (
	validSatellites = []string{"GOES-EAST", "GOES-WEST", "GOES-16", "GOES-18", "GOES-19"}
	validSensors    = []string{"abi", "suvi", "glm"}
	validLevels     = []string{"L1b", "L2"}
	validDomains    = []string{"fd", "conus"}

	validProducts = []string{
		"ACHA", "ACHT", "ACM", "ACTP", "ADP", "AOD", "CMIP", "COD", "CPS",
		"CTP", "DMW", "DSI", "DSR", "FDC", "LST", "LVMP", "LVTP", "MCMIP",
		"RRQPE", "RSR", "SST", "TPW", "VAA",
	}

	// s3OnlyProducts are never packaged into the local archives and are
	// retrieved exclusively from the public bucket.
	s3OnlyProducts = map[string]struct{}{
		"DMW": {},
		"DSR": {},
		"RSR": {},
	}

	allBands = []string{
		"01", "02", "03", "04", "05", "06", "07", "08",
		"09", "10", "11", "12", "13", "14", "15", "16",
	}

	// productAliases folds day/night and advisory variants found in
	// filenames back to the requestable product code.
	productAliases = map[string]string{
		"CODD": "COD",
		"CODN": "COD",
		"CPSD": "CPS",
		"CPSN": "CPS",
		"VAAF": "VAA",
	}
)

func ValidSatellites() []string { return append([]string(nil), validSatellites...) }
func ValidSensors() []string    { return append([]string(nil), validSensors...) }
func ValidLevels() []string     { return append([]string(nil), validLevels...) }
func ValidDomains() []string    { return append([]string(nil), validDomains...) }
func ValidProducts() []string   { return append([]string(nil), validProducts...) }
func ValidBands() []string      { return append([]string(nil), allBands...) }

// DefaultBands is the band set applied when a request omits bandas.
func DefaultBands() []string { return append([]string(nil), allBands...) }

func IsValidSatellite(sat string) bool { return contains(validSatellites, sat) }
func IsValidSensor(sensor string) bool { return contains(validSensors, sensor) }
func IsValidLevel(level string) bool   { return contains(validLevels, level) }
func IsValidDomain(domain string) bool { return contains(validDomains, domain) }

func IsValidProduct(product string) bool {
	p := strings.ToUpper(strings.TrimSpace(product))
	if p == TokenAll {
		return true
	}
	if _, ok := productAliases[p]; ok {
		return true
	}
	return contains(validProducts, p)
}

// IsS3Only reports whether the product is served exclusively by the remote
// store.
func IsS3Only(product string) bool {
	_, ok := s3OnlyProducts[strings.ToUpper(strings.TrimSpace(product))]
	return ok
}

// ValidateBands normalizes band codes to two digits and rejects anything
// outside 01..16. The ALL token passes through untouched. An empty input is
// valid and returned as-is.
func ValidateBands(bands []string) ([]string, error) {
	if len(bands) == 0 {
		return bands, nil
	}

	out := make([]string, 0, len(bands))
	var invalid []string
	for _, b := range bands {
		s := strings.TrimSpace(b)
		if strings.EqualFold(s, TokenAll) {
			out = append(out, TokenAll)
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 16 {
			invalid = append(invalid, b)
			continue
		}
		out = append(out, fmt.Sprintf("%02d", n))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("Bandas inválidas: %v", invalid)
	}
	return out, nil
}

// ExpandBands resolves the ALL token to the full 16-band set. Anything else
// is normalized to two-digit codes.
func ExpandBands(bands []string) []string {
	for _, b := range bands {
		if strings.EqualFold(strings.TrimSpace(b), TokenAll) {
			return DefaultBands()
		}
	}
	out := make([]string, 0, len(bands))
	for _, b := range bands {
		if n, err := strconv.Atoi(strings.TrimSpace(b)); err == nil {
			out = append(out, fmt.Sprintf("%02d", n))
		} else {
			out = append(out, b)
		}
	}
	return out
}

// RequestedAllBands is true when the request asked for every band, either
// via the ALL token or by listing the full set.
func RequestedAllBands(bands []string) bool {
	if len(bands) == 0 {
		return false
	}
	for _, b := range bands {
		if strings.EqualFold(strings.TrimSpace(b), TokenAll) {
			return true
		}
	}
	return sameSet(ExpandBands(bands), allBands)
}

// RequestedAllProducts is true when the request asked for every product.
func RequestedAllProducts(products []string) bool {
	if len(products) == 0 {
		return false
	}
	normalized := make([]string, 0, len(products))
	for _, p := range products {
		up := strings.ToUpper(strings.TrimSpace(p))
		if up == TokenAll {
			return true
		}
		normalized = append(normalized, up)
	}
	return sameSet(normalized, validProducts)
}

// ProductRequiresBands reports whether a (level, product) pair is
// band-multiplied: all of L1b, and the CMI family at L2.
func ProductRequiresBands(level, product string) bool {
	l := strings.ToUpper(strings.TrimSpace(level))
	if l == "L1B" {
		return true
	}
	return l == "L2" && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(product)), "CMI")
}

// QueryRequiresBands reports whether bands participate in matching for the
// whole request: L1b always, L2 when any product is CMI-family or ALL.
func QueryRequiresBands(level string, products []string) bool {
	if strings.EqualFold(strings.TrimSpace(level), "L1b") {
		return true
	}
	for _, p := range products {
		up := strings.ToUpper(strings.TrimSpace(p))
		if up == TokenAll || strings.HasPrefix(up, "CMI") {
			return true
		}
	}
	return false
}

// ProductAlias folds filename product variants (CODD, CPSN, VAAF, ...) to
// the requestable base code.
func ProductAlias(product string) string {
	p := strings.ToUpper(strings.TrimSpace(product))
	if base, ok := productAliases[p]; ok {
		return base
	}
	return p
}

// SatCodeForDate resolves a satellite name to its Gxx code. Operational
// aliases depend on the date: GOES-EAST flipped from GOES-16 to GOES-19 on
// the cutover date, GOES-WEST is GOES-18.
func SatCodeForDate(satellite string, date time.Time) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(satellite)) {
	case "GOES-EAST", "":
		if !date.Before(GOES19OperationalDate) {
			return "G19", nil
		}
		return "G16", nil
	case "GOES-WEST":
		return "G18", nil
	case "GOES-16":
		return "G16", nil
	case "GOES-18":
		return "G18", nil
	case "GOES-19":
		return "G19", nil
	}
	return "", fmt.Errorf("Satélite '%s' no es soportado", satellite)
}

// BucketForCode maps a Gxx satellite code to its public bucket name.
func BucketForCode(code string) string {
	return "noaa-goes" + strings.TrimPrefix(strings.ToUpper(code), "G")
}

// DomainLetter maps a domain id to the letter carried in filenames.
func DomainLetter(domain string) string {
	switch strings.ToLower(strings.TrimSpace(domain)) {
	case "conus":
		return "C"
	case "m1":
		return "M1"
	case "m2":
		return "M2"
	default:
		return "F"
	}
}

// ProductPathL1b builds the remote prefix for level-1b radiances,
// e.g. ABI-L1b-RadF.
func ProductPathL1b(sensor, domainLetter string) string {
	return strings.ToUpper(sensor) + "-L1b-Rad" + domainLetter
}

// ProductPathL2 builds the remote prefix for a level-2 product,
// e.g. ABI-L2-CMIPC. Filename variants are folded to their base first.
func ProductPathL2(sensor, product, domainLetter string) string {
	return strings.ToUpper(sensor) + "-L2-" + ProductAlias(product) + domainLetter
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
