package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/httpclient"
	"github.com/lanot/goesrecover/pkg/query"
)

const defaultPollInterval = 2 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newClient(opts *globalOptions) *httpclient.Client {
	return httpclient.NewWithCompression(opts.Endpoint, opts.APIKey)
}

// readRequest loads a request from the given file, or from stdin when the
// path is empty or "-".
func readRequest(path string) (*query.Request, error) {
	var (
		b   []byte
		err error
	)

	if path == "" || path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	req := &query.Request{}
	if err := json.Unmarshal(b, req); err != nil {
		return nil, fmt.Errorf("request is not valid json: %w", err)
	}

	return req, nil
}

// waitForDone polls a consulta until it reaches a terminal state, printing a
// progress line per poll. The server's Retry-After hint drives the cadence.
func waitForDone(c *httpclient.Client, id string) (*httpclient.QueryStatus, error) {
	s, err := c.QueryStatus(id)
	if err != nil {
		return nil, err
	}

	for !s.Done() {
		wait := s.RetryAfter
		if wait <= 0 {
			wait = defaultPollInterval
		}
		time.Sleep(wait)

		s, err = c.QueryStatus(id)
		if err != nil {
			return nil, err
		}
		fmt.Printf("%s  %-11s %3d%%  %s\n", time.Now().Format("15:04:05"), s.Estado, s.Progreso, s.Mensaje)
	}

	return s, nil
}

func printStatus(s *httpclient.QueryStatus) {
	fmt.Println("consulta : ", s.ConsultaID)
	fmt.Println("estado   : ", s.Estado)
	fmt.Println("progreso : ", fmt.Sprintf("%d%%", s.Progreso))
	fmt.Println("mensaje  : ", s.Mensaje)
	if s.Etapa != "" {
		fmt.Println("etapa    : ", s.Etapa)
	}
	if s.RutaDestino != "" {
		fmt.Println("destino  : ", s.RutaDestino)
	}
	if s.TotalMB > 0 {
		fmt.Println("tamaño   : ", humanMB(s.TotalMB))
	}
	if s.TotalFiles != nil {
		fmt.Println("archivos : ", fmt.Sprintf("%s (lustre %s, s3 %s)",
			humanize.Comma(int64(*s.TotalFiles)), commaOrDash(s.LustreFiles), commaOrDash(s.S3Files)))
	}
}

// terminalErr turns an errored consulta into a non-zero exit.
func terminalErr(s *httpclient.QueryStatus) error {
	if s.Estado == registry.StateError {
		return fmt.Errorf("consulta %s terminó en error: %s", s.ConsultaID, s.Mensaje)
	}
	return nil
}

func humanMB(mb float64) string {
	return humanize.Bytes(uint64(mb * 1024 * 1024))
}

func commaOrDash(n *int) string {
	if n == nil {
		return "-"
	}
	return humanize.Comma(int64(*n))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
