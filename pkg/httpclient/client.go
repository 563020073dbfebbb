package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzhttp"

	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/api"
	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
)

const (
	acceptHeader    = "Accept"
	applicationJSON = "application/json"

	// PathReady is served by the app, not the frontend, so it has no
	// constant in pkg/api.
	PathReady = "/ready"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNotFound = errors.New("consulta not found")

// APIError is returned for responses outside the 2xx range.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s request to %s failed with response: %d body: %s", e.Method, e.URL, e.StatusCode, e.Detail)
}

// QueryAccepted is the body returned by submit and restart.
type QueryAccepted struct {
	Success    bool          `json:"success"`
	ConsultaID string        `json:"consulta_id"`
	Estado     string        `json:"estado"`
	Mensaje    string        `json:"mensaje"`
	Resumen    query.Summary `json:"resumen"`
}

// ValidationResult is the body returned by validate.
type ValidationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	goes.Estimate
}

// QueryStatus is the body returned while polling a consulta. RetryAfter is
// filled from the response header when the server asks the caller to poll
// again.
type QueryStatus struct {
	ConsultaID  string  `json:"consulta_id"`
	Estado      string  `json:"estado"`
	Progreso    int     `json:"progreso"`
	Mensaje     string  `json:"mensaje"`
	Timestamp   string  `json:"timestamp"`
	RutaDestino string  `json:"ruta_destino"`
	TotalMB     float64 `json:"total_mb"`
	Etapa       string  `json:"etapa"`

	TotalFiles  *int `json:"total_archivos,omitempty"`
	LustreFiles *int `json:"archivos_lustre,omitempty"`
	S3Files     *int `json:"archivos_s3,omitempty"`

	RetryAfter time.Duration `json:"-"`
}

// Done reports whether the consulta reached a terminal state.
func (s *QueryStatus) Done() bool {
	return s.Estado == registry.StateCompleted || s.Estado == registry.StateError
}

// QueryListEntry is one row of the listing endpoint.
type QueryListEntry struct {
	ConsultaID string        `json:"consulta_id"`
	Estado     string        `json:"estado"`
	Progreso   int           `json:"progreso"`
	Mensaje    string        `json:"mensaje"`
	CreatedAt  string        `json:"timestamp_creacion"`
	User       string        `json:"usuario,omitempty"`
	Resumen    query.Summary `json:"resumen"`
}

// QueryList is the body returned by the listing endpoint.
type QueryList struct {
	Total     int              `json:"total"`
	Consultas []QueryListEntry `json:"consultas"`
}

// DeleteResult is the body returned by delete.
type DeleteResult struct {
	ConsultaID string `json:"consulta_id"`
	Eliminada  bool   `json:"eliminada"`
	Purgada    bool   `json:"purgada"`
}

// Catalog is the request vocabulary served by the satellites endpoint.
type Catalog struct {
	Satellites       []string `json:"satelites"`
	DefaultSatellite string   `json:"satelite_default"`
	Sensors          []string `json:"sensores"`
	DefaultSensor    string   `json:"sensor_default"`
	Levels           []string `json:"niveles"`
	DefaultLevel     string   `json:"nivel_default"`
	Domains          []string `json:"dominios"`
	Products         []string `json:"productos"`
	ProductsS3Only   []string `json:"productos_solo_s3"`
	Bands            []string `json:"bandas"`
}

// ServiceInfo is the body returned by the root endpoint.
type ServiceInfo struct {
	Service   string            `json:"servicio"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Client is a client to the goesrecover API.
type Client struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{},
	}
}

func NewWithCompression(baseURL, apiKey string) *Client {
	c := New(baseURL, apiKey)
	c.WithTransport(gzhttp.Transport(http.DefaultTransport))
	return c
}

func (c *Client) WithTransport(t http.RoundTripper) {
	c.client.Transport = t
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// doRequest sends the given request, it injects X-API-Key and handles bad
// status codes. The body is returned even on bad statuses so callers can
// salvage structured payloads out of them.
func (c *Client) doRequest(req *http.Request) (*http.Response, []byte, error) {
	if len(c.APIKey) > 0 {
		req.Header.Set(api.HeaderAPIKey, c.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("error querying goesrecover %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 && resp.StatusCode <= 599 {
		body, _ := io.ReadAll(resp.Body)
		return resp, body, &APIError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading response body: %w", err)
	}

	return resp, body, nil
}

// errorDetail unwraps the {"detail": ...} envelope error responses carry.
func errorDetail(body []byte) string {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return string(body)
}

// getFor sends a GET request and attempts to unmarshal the response.
func (c *Client) getFor(url string, v interface{}) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(acceptHeader, applicationJSON)

	resp, body, err := c.doRequest(req)
	if err != nil {
		return resp, err
	}

	if err = json.Unmarshal(body, v); err != nil {
		return resp, fmt.Errorf("error decoding %T json, err: %v body: %s", v, err, string(body))
	}

	return resp, nil
}

// postFor marshals v, POSTs it and attempts to unmarshal the response.
func (c *Client) postFor(url string, payload, v interface{}) (*http.Response, error) {
	var buf io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(b)
	}

	req, err := http.NewRequest("POST", url, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set(api.HeaderContentType, applicationJSON)

	resp, body, err := c.doRequest(req)
	if err != nil {
		return resp, err
	}

	if err = json.Unmarshal(body, v); err != nil {
		return resp, fmt.Errorf("error decoding %T json, err: %v body: %s", v, err, string(body))
	}

	return resp, nil
}

// SubmitQuery submits a retrieval request for asynchronous processing.
func (c *Client) SubmitQuery(r *query.Request) (*QueryAccepted, error) {
	m := &QueryAccepted{}
	_, err := c.postFor(c.BaseURL+api.PathQuery, r, m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ValidateQuery runs a request through admission without persisting it.
func (c *Client) ValidateQuery(r *query.Request) (*ValidationResult, error) {
	m := &ValidationResult{}
	_, err := c.postFor(c.BaseURL+api.PathValidate, r, m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// QueryStatus fetches the current state of a consulta. Errored consultas
// answer 500 with a regular status body, so that status is returned as data
// rather than as an error.
func (c *Client) QueryStatus(id string) (*QueryStatus, error) {
	req, err := http.NewRequest("GET", c.BaseURL+api.QueryPath(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(acceptHeader, applicationJSON)

	resp, body, err := c.doRequest(req)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp != nil && resp.StatusCode == http.StatusInternalServerError {
			m := &QueryStatus{}
			if uerr := json.Unmarshal(body, m); uerr == nil && m.ConsultaID != "" {
				return m, nil
			}
		}
		return nil, err
	}

	m := &QueryStatus{}
	if err = json.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("error decoding %T json, err: %v body: %s", m, err, string(body))
	}

	m.RetryAfter = retryAfter(resp)
	return m, nil
}

// QueryRecord fetches the full stored record, results included.
func (c *Client) QueryRecord(id string) (*registry.Record, error) {
	u := c.BaseURL + api.QueryPath(id) + "?resultados=true"

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(acceptHeader, applicationJSON)

	resp, body, err := c.doRequest(req)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp != nil && resp.StatusCode == http.StatusInternalServerError {
			rec := &registry.Record{}
			if uerr := json.Unmarshal(body, rec); uerr == nil && rec.ID != "" {
				return rec, nil
			}
		}
		return nil, err
	}

	rec := &registry.Record{}
	if err = json.Unmarshal(body, rec); err != nil {
		return nil, fmt.Errorf("error decoding %T json, err: %v body: %s", rec, err, string(body))
	}

	return rec, nil
}

// ListQueries lists recent consultas, newest first. estado filters by state
// when non-empty and limite caps the result when positive.
func (c *Client) ListQueries(estado string, limite int) (*QueryList, error) {
	m := &QueryList{}
	_, err := c.getFor(c.buildListURL(estado, limite), m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RestartQuery requeues a consulta from scratch.
func (c *Client) RestartQuery(id string) (*QueryAccepted, error) {
	m := &QueryAccepted{}
	resp, err := c.postFor(c.BaseURL+api.QueryRestartPath(id), nil, m)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return m, nil
}

// DeleteQuery removes a consulta. purge also removes its downloaded files,
// force allows deleting one that is still processing.
func (c *Client) DeleteQuery(id string, purge, force bool) (*DeleteResult, error) {
	joinURL, _ := url.Parse(c.BaseURL + api.QueryPath(id) + "?")
	q := joinURL.Query()
	if purge {
		q.Set("purge", "true")
	}
	if force {
		q.Set("force", "true")
	}
	joinURL.RawQuery = q.Encode()

	req, err := http.NewRequest("DELETE", fmt.Sprint(joinURL), nil)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.doRequest(req)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m := &DeleteResult{}
	if err = json.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("error decoding %T json, err: %v body: %s", m, err, string(body))
	}

	return m, nil
}

// Satellites fetches the request catalog.
func (c *Client) Satellites() (*Catalog, error) {
	m := &Catalog{}
	_, err := c.getFor(c.BaseURL+api.PathSatellites, m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Info fetches the service descriptor from the root endpoint.
func (c *Client) Info() (*ServiceInfo, error) {
	m := &ServiceInfo{}
	_, err := c.getFor(c.BaseURL+api.PathRoot, m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Ready probes the readiness endpoint.
func (c *Client) Ready() error {
	req, err := http.NewRequest("GET", c.BaseURL+PathReady, nil)
	if err != nil {
		return err
	}

	_, _, err = c.doRequest(req)
	return err
}

func (c *Client) buildListURL(estado string, limite int) string {
	joinURL, _ := url.Parse(c.BaseURL + api.PathQueries + "?")
	q := joinURL.Query()
	if estado != "" {
		q.Set("estado", estado)
	}
	if limite > 0 {
		q.Set("limite", strconv.Itoa(limite))
	}
	joinURL.RawQuery = q.Encode()

	return fmt.Sprint(joinURL)
}

func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusAccepted {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get(api.HeaderRetryAfter))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
