package api

import (
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryPath(t *testing.T) {
	assert.Equal(t, "/query/abc123", QueryPath("abc123"))
}

func TestParseConsultaID(t *testing.T) {
	r := httptest.NewRequest("GET", "/query/abc123", nil)
	r = mux.SetURLVars(r, map[string]string{muxVarConsultaID: "abc123"})

	id, err := ParseConsultaID(r)
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = ParseConsultaID(httptest.NewRequest("GET", "/query/", nil))
	assert.EqualError(t, err, "please provide a consulta id")
}

func TestParseResultados(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{url: "/query/abc123", expected: false},
		{url: "/query/abc123?resultados=true", expected: true},
		{url: "/query/abc123?resultados=True", expected: true},
		{url: "/query/abc123?resultados=1", expected: true},
		{url: "/query/abc123?resultados=false", expected: false},
		{url: "/query/abc123?resultados=si", expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.url, nil)
			assert.Equal(t, tc.expected, ParseResultados(r))
		})
	}
}

func TestParseListParams(t *testing.T) {
	tests := []struct {
		url            string
		expectedEstado string
		expectedLimite int
		expectedError  string
	}{
		{url: "/queries", expectedLimite: 100},
		{url: "/queries?estado=completado", expectedEstado: "completado", expectedLimite: 100},
		{url: "/queries?limite=5", expectedLimite: 5},
		{url: "/queries?estado=error&limite=25", expectedEstado: "error", expectedLimite: 25},
		{url: "/queries?limite=muchos", expectedError: "invalid limite: strconv.Atoi: parsing \"muchos\": invalid syntax"},
		{url: "/queries?limite=0", expectedError: "invalid limite: must be a positive number"},
		{url: "/queries?limite=-3", expectedError: "invalid limite: must be a positive number"},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.url, nil)

			estado, limite, err := ParseListParams(r)
			if tc.expectedError != "" {
				assert.EqualError(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedEstado, estado)
			assert.Equal(t, tc.expectedLimite, limite)
		})
	}
}

func TestParseDeleteParams(t *testing.T) {
	tests := []struct {
		url           string
		expectedPurge bool
		expectedForce bool
		expectedError string
	}{
		{url: "/query/abc123"},
		{url: "/query/abc123?purge=true", expectedPurge: true},
		{url: "/query/abc123?purge=True&force=True", expectedPurge: true, expectedForce: true},
		{url: "/query/abc123?force=1", expectedForce: true},
		{url: "/query/abc123?purge=tal+vez", expectedError: "invalid purge: strconv.ParseBool: parsing \"tal vez\": invalid syntax"},
		{url: "/query/abc123?force=nunca", expectedError: "invalid force: strconv.ParseBool: parsing \"nunca\": invalid syntax"},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			r := httptest.NewRequest("DELETE", tc.url, nil)

			purge, force, err := ParseDeleteParams(r)
			if tc.expectedError != "" {
				assert.EqualError(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedPurge, purge)
			assert.Equal(t, tc.expectedForce, force)
		})
	}
}
