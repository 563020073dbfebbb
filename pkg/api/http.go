package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

const (
	muxVarConsultaID = "consultaID"

	urlParamResultados = "resultados"
	urlParamEstado     = "estado"
	urlParamLimite     = "limite"
	urlParamPurge      = "purge"
	urlParamForce      = "force"

	HeaderContentType = "Content-Type"
	HeaderLocation    = "Location"
	HeaderRetryAfter  = "Retry-After"
	HeaderAPIKey      = "X-API-Key"

	ContentTypeJSON = "application/json; charset=utf-8"

	PathQuery        = "/query"
	PathQueryByID    = "/query/{" + muxVarConsultaID + "}"
	PathQueryRestart = "/query/{" + muxVarConsultaID + "}/restart"
	PathQueries      = "/queries"
	PathValidate     = "/validate"
	PathSatellites   = "/satellites"
	PathRoot         = "/"

	// RetryAfterSeconds accompanies 202 responses while a query is still
	// in flight.
	RetryAfterSeconds = "10"

	defaultListLimit = 100
)

// QueryPath builds the canonical status location for a consulta. It is the
// value the submit and restart handlers place in the Location header.
func QueryPath(consultaID string) string {
	return PathQuery + "/" + consultaID
}

// QueryRestartPath builds the restart endpoint for a consulta.
func QueryRestartPath(consultaID string) string {
	return QueryPath(consultaID) + "/restart"
}

// ParseConsultaID pulls the consulta id out of the route.
func ParseConsultaID(r *http.Request) (string, error) {
	vars := mux.Vars(r)
	consultaID, ok := vars[muxVarConsultaID]
	if !ok || consultaID == "" {
		return "", fmt.Errorf("please provide a consulta id")
	}
	return consultaID, nil
}

// ParseResultados reports whether the caller asked for the full report to be
// embedded in the status body. Python clients send ?resultados=True, which
// strconv.ParseBool accepts.
func ParseResultados(r *http.Request) bool {
	s, ok := extractQueryParam(r, urlParamResultados)
	if !ok {
		return false
	}
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

// ParseListParams extracts the optional state filter and the result limit
// for the listing endpoint. The limit defaults to 100 when absent.
func ParseListParams(r *http.Request) (estado string, limite int, err error) {
	estado, _ = extractQueryParam(r, urlParamEstado)

	limite = defaultListLimit
	if s, ok := extractQueryParam(r, urlParamLimite); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return "", 0, fmt.Errorf("invalid limite: %w", err)
		}
		if n <= 0 {
			return "", 0, fmt.Errorf("invalid limite: must be a positive number")
		}
		limite = n
	}

	return estado, limite, nil
}

// ParseDeleteParams extracts the purge and force flags from a delete request.
func ParseDeleteParams(r *http.Request) (purge, force bool, err error) {
	if s, ok := extractQueryParam(r, urlParamPurge); ok {
		purge, err = strconv.ParseBool(s)
		if err != nil {
			return false, false, fmt.Errorf("invalid purge: %w", err)
		}
	}

	if s, ok := extractQueryParam(r, urlParamForce); ok {
		force, err = strconv.ParseBool(s)
		if err != nil {
			return false, false, fmt.Errorf("invalid force: %w", err)
		}
	}

	return purge, force, nil
}

func extractQueryParam(r *http.Request, param string) (string, bool) {
	value := r.URL.Query().Get(param)
	return value, value != ""
}
