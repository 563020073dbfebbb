package frontend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/api"
	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
	"github.com/lanot/goesrecover/pkg/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonStrict rejects unknown fields so schema mistakes surface as 422
// instead of being silently dropped.
var jsonStrict = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()

var metricSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "goesrecover",
	Name:      "frontend_submissions_total",
	Help:      "Submitted queries by admission outcome.",
}, []string{"resultado"})

const (
	outcomeAccepted = "aceptada"
	outcomeInvalid  = "invalida"
	outcomeRejected = "rechazada"
)

// queryStore is the slice of the registry the API reads and writes.
type queryStore interface {
	Create(q *query.Query, user string) (*registry.Record, error)
	Get(id string) (*registry.Record, error)
	List(state string, limit int) ([]*registry.Record, error)
	Reset(id string) error
	Delete(id string) error
}

// enqueuer hands accepted queries to the processing loop.
type enqueuer interface {
	Enqueue(id string) error
}

// Frontend serves the public query API.
type Frontend struct {
	cfg    Config
	store  queryStore
	proc   enqueuer
	logger log.Logger

	// swapped out by tests
	now       func() time.Time
	freeBytes func(string) (int64, error)
}

func New(cfg Config, store queryStore, proc enqueuer, logger log.Logger) (*Frontend, error) {
	if cfg.DownloadPath == "" {
		return nil, errors.New("frontend requires a download path")
	}

	return &Frontend{
		cfg:       cfg,
		store:     store,
		proc:      proc,
		logger:    logger,
		now:       time.Now,
		freeBytes: util.FreeBytes,
	}, nil
}

// Register binds every API route on the router.
func (f *Frontend) Register(r *mux.Router) {
	r.HandleFunc(api.PathQuery, f.CreateQueryHandler).Methods(http.MethodPost)
	r.HandleFunc(api.PathValidate, f.ValidateHandler).Methods(http.MethodPost)
	r.HandleFunc(api.PathQueryByID, f.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc(api.PathQueryByID, f.DeleteQueryHandler).Methods(http.MethodDelete)
	r.HandleFunc(api.PathQueryRestart, f.RestartHandler).Methods(http.MethodPost)
	r.HandleFunc(api.PathQueries, f.ListQueriesHandler).Methods(http.MethodGet)
	r.HandleFunc(api.PathSatellites, f.SatellitesHandler).Methods(http.MethodGet)
	r.HandleFunc(api.PathRoot, f.RootHandler).Methods(http.MethodGet)
}

// decodeRequest reads a request body. Malformed JSON, unknown fields and a
// missing fechas object are schema problems and answered with 422.
func (f *Frontend) decodeRequest(w http.ResponseWriter, r *http.Request) (*query.Request, bool) {
	defer func() { _ = r.Body.Close() }()

	req := &query.Request{}
	if err := jsonStrict.NewDecoder(r.Body).Decode(req); err != nil {
		metricSubmissions.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusUnprocessableEntity, "Cuerpo de la solicitud inválido: "+err.Error())
		return nil, false
	}
	if req.Fechas == nil {
		metricSubmissions.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusUnprocessableEntity, "El campo 'fechas' es obligatorio")
		return nil, false
	}

	return req, true
}

// admitQuery validates a request, estimates its cost and applies the
// acceptance gate. It writes the error response itself when admission
// fails.
func (f *Frontend) admitQuery(w http.ResponseWriter, req *query.Request) (*query.Query, goes.Estimate, bool) {
	q, err := query.Normalize(req, f.now())
	if err != nil {
		metricSubmissions.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, goes.Estimate{}, false
	}

	est, err := goes.EstimateQuery(goes.EstimateRequest{
		Level:    q.Level,
		Domain:   q.Domain,
		Bands:    q.Bands,
		Products: q.Products,
		Fechas:   q.Fechas,
	})
	if err != nil {
		metricSubmissions.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, goes.Estimate{}, false
	}

	if f.cfg.MaxFilesPerQuery > 0 && est.FileCount > f.cfg.MaxFilesPerQuery {
		metricSubmissions.WithLabelValues(outcomeRejected).Inc()
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf(
			"La consulta estima %d archivos y excede el límite de %d", est.FileCount, f.cfg.MaxFilesPerQuery))
		return nil, goes.Estimate{}, false
	}
	if f.cfg.MaxSizeMBPerQuery > 0 && est.TotalSizeMB > f.cfg.MaxSizeMBPerQuery {
		metricSubmissions.WithLabelValues(outcomeRejected).Inc()
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf(
			"La consulta estima %.2f MB y excede el límite de %.2f MB", est.TotalSizeMB, f.cfg.MaxSizeMBPerQuery))
		return nil, goes.Estimate{}, false
	}

	free, err := f.freeBytes(f.cfg.DownloadPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error procesando query: "+err.Error())
		return nil, goes.Estimate{}, false
	}
	freeAfterGB := (float64(free) - est.TotalSizeMB*1024*1024) / (1024 * 1024 * 1024)
	if freeAfterGB < f.cfg.MinFreeSpaceGBBuffer {
		metricSubmissions.WithLabelValues(outcomeRejected).Inc()
		writeError(w, http.StatusInsufficientStorage, fmt.Sprintf(
			"Espacio en disco insuficiente: quedarían %.2f GB libres y el mínimo configurado es %.2f GB",
			freeAfterGB, f.cfg.MinFreeSpaceGBBuffer))
		return nil, goes.Estimate{}, false
	}

	return q, est, true
}

// authorized enforces the optional API key on mutating endpoints.
func (f *Frontend) authorized(w http.ResponseWriter, r *http.Request) bool {
	key := f.cfg.APIKey.String()
	if key == "" {
		return true
	}
	if r.Header.Get(api.HeaderAPIKey) != key {
		writeError(w, http.StatusUnauthorized, "API key inválida")
		return false
	}
	return true
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(api.HeaderContentType, api.ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}
