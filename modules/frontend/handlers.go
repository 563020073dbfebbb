package frontend

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/common/version"

	"github.com/lanot/goesrecover/modules/processor"
	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/api"
	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
)

const serviceName = "goesrecover"

type createResponse struct {
	Success    bool          `json:"success"`
	ConsultaID string        `json:"consulta_id"`
	Estado     string        `json:"estado"`
	Mensaje    string        `json:"mensaje"`
	Resumen    query.Summary `json:"resumen"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	goes.Estimate
}

type statusResponse struct {
	ConsultaID  string  `json:"consulta_id"`
	Estado      string  `json:"estado"`
	Progreso    int     `json:"progreso"`
	Mensaje     string  `json:"mensaje"`
	Timestamp   string  `json:"timestamp"`
	RutaDestino string  `json:"ruta_destino"`
	TotalMB     float64 `json:"total_mb"`
	Etapa       string  `json:"etapa"`

	// present once the query completed
	TotalFiles  *int `json:"total_archivos,omitempty"`
	LustreFiles *int `json:"archivos_lustre,omitempty"`
	S3Files     *int `json:"archivos_s3,omitempty"`
}

type listEntry struct {
	ConsultaID string        `json:"consulta_id"`
	Estado     string        `json:"estado"`
	Progreso   int           `json:"progreso"`
	Mensaje    string        `json:"mensaje"`
	CreatedAt  string        `json:"timestamp_creacion"`
	User       string        `json:"usuario,omitempty"`
	Resumen    query.Summary `json:"resumen"`
}

type listResponse struct {
	Total     int         `json:"total"`
	Consultas []listEntry `json:"consultas"`
}

type deleteResponse struct {
	ConsultaID string `json:"consulta_id"`
	Eliminada  bool   `json:"eliminada"`
	Purgada    bool   `json:"purgada"`
}

type catalogResponse struct {
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

type serviceDescriptor struct {
	Service   string            `json:"servicio"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// CreateQueryHandler accepts a retrieval request, persists it and hands it
// to the processor. The caller polls the Location header for progress.
func (f *Frontend) CreateQueryHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := f.decodeRequest(w, r)
	if !ok {
		return
	}
	q, _, ok := f.admitQuery(w, req)
	if !ok {
		return
	}

	rec, err := f.store.Create(q, req.CreatedBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error procesando query: "+err.Error())
		return
	}

	if err := f.proc.Enqueue(rec.ID); err != nil {
		// The record stays in the store and is drained on the next start.
		level.Warn(f.logger).Log("msg", "accepted query could not be enqueued", "consulta_id", rec.ID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "El procesador está saturado; intente de nuevo más tarde")
		return
	}

	metricSubmissions.WithLabelValues(outcomeAccepted).Inc()
	level.Info(f.logger).Log("msg", "query accepted", "consulta_id", rec.ID, "usuario", rec.User)

	w.Header().Set(api.HeaderLocation, api.QueryPath(rec.ID))
	writeJSON(w, http.StatusAccepted, createResponse{
		Success:    true,
		ConsultaID: rec.ID,
		Estado:     rec.State,
		Mensaje:    "Consulta aceptada para procesamiento",
		Resumen:    q.Summary(),
	})
}

// ValidateHandler runs the admission pipeline without persisting anything.
func (f *Frontend) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := f.decodeRequest(w, r)
	if !ok {
		return
	}
	_, est, ok := f.admitQuery(w, req)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Success:  true,
		Message:  "La solicitud es válida.",
		Estimate: est,
	})
}

// StatusHandler reports where a query is in its lifecycle. In-flight queries
// answer 202 so clients keep polling, errored ones answer 500.
func (f *Frontend) StatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := api.ParseConsultaID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, ok := f.getRecord(w, id)
	if !ok {
		return
	}

	status := http.StatusOK
	switch rec.State {
	case registry.StateReceived, registry.StateProcessing:
		status = http.StatusAccepted
		w.Header().Set(api.HeaderRetryAfter, api.RetryAfterSeconds)
	case registry.StateError:
		status = http.StatusInternalServerError
	}

	if api.ParseResultados(r) {
		writeJSON(w, status, rec)
		return
	}
	writeJSON(w, status, f.statusBody(rec))
}

// RestartHandler requeues a finished or stuck query from scratch.
func (f *Frontend) RestartHandler(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}

	id, err := api.ParseConsultaID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, ok := f.getRecord(w, id)
	if !ok {
		return
	}
	if rec.State == registry.StateReceived {
		writeError(w, http.StatusBadRequest, "La consulta ya está en espera de procesamiento")
		return
	}

	if err := f.store.Reset(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Error procesando query: "+err.Error())
		return
	}
	if err := f.proc.Enqueue(id); err != nil {
		level.Warn(f.logger).Log("msg", "restarted query could not be enqueued", "consulta_id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, "El procesador está saturado; intente de nuevo más tarde")
		return
	}

	level.Info(f.logger).Log("msg", "query restarted", "consulta_id", id)

	w.Header().Set(api.HeaderLocation, api.QueryPath(id))
	writeJSON(w, http.StatusAccepted, createResponse{
		Success:    true,
		ConsultaID: id,
		Estado:     registry.StateReceived,
		Mensaje:    "Consulta reiniciada",
		Resumen:    rec.Query.Summary(),
	})
}

// DeleteQueryHandler removes a record and optionally its downloaded files.
func (f *Frontend) DeleteQueryHandler(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}

	id, err := api.ParseConsultaID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	purge, force, err := api.ParseDeleteParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, ok := f.getRecord(w, id)
	if !ok {
		return
	}
	if rec.State == registry.StateProcessing && !force {
		writeError(w, http.StatusConflict, "La consulta está en procesamiento; use force=true para eliminarla")
		return
	}

	if err := f.store.Delete(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Consulta no encontrada")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error procesando query: "+err.Error())
		return
	}

	purged := false
	if purge {
		dest := filepath.Join(f.cfg.DownloadPath, id)
		if err := os.RemoveAll(dest); err != nil {
			level.Warn(f.logger).Log("msg", "destination purge failed", "consulta_id", id, "err", err)
		} else {
			purged = true
		}
	}

	level.Info(f.logger).Log("msg", "query deleted", "consulta_id", id, "purgada", purged)
	writeJSON(w, http.StatusOK, deleteResponse{ConsultaID: id, Eliminada: true, Purgada: purged})
}

// ListQueriesHandler returns recent queries, newest first.
func (f *Frontend) ListQueriesHandler(w http.ResponseWriter, r *http.Request) {
	estado, limite, err := api.ParseListParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := f.store.List(estado, limite)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error procesando query: "+err.Error())
		return
	}

	entries := make([]listEntry, 0, len(recs))
	for _, rec := range recs {
		entry := listEntry{
			ConsultaID: rec.ID,
			Estado:     rec.State,
			Progreso:   rec.Progress,
			Mensaje:    rec.Message,
			CreatedAt:  rec.CreatedAt,
			User:       rec.User,
		}
		if rec.Query != nil {
			entry.Resumen = rec.Query.Summary()
		}
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, listResponse{Total: len(entries), Consultas: entries})
}

// SatellitesHandler dumps the request catalog so clients can build pickers
// without hardcoding it.
func (f *Frontend) SatellitesHandler(w http.ResponseWriter, _ *http.Request) {
	var s3Only []string
	for _, p := range goes.ValidProducts() {
		if goes.IsS3Only(p) {
			s3Only = append(s3Only, p)
		}
	}

	writeJSON(w, http.StatusOK, catalogResponse{
		Satellites:       goes.ValidSatellites(),
		DefaultSatellite: goes.DefaultSatellite,
		Sensors:          goes.ValidSensors(),
		DefaultSensor:    goes.DefaultSensor,
		Levels:           goes.ValidLevels(),
		DefaultLevel:     goes.DefaultLevel,
		Domains:          goes.ValidDomains(),
		Products:         goes.ValidProducts(),
		ProductsS3Only:   s3Only,
		Bands:            goes.ValidBands(),
	})
}

// RootHandler describes the service.
func (f *Frontend) RootHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, serviceDescriptor{
		Service: serviceName,
		Version: version.Version,
		Endpoints: map[string]string{
			"submit":     "POST " + api.PathQuery,
			"validate":   "POST " + api.PathValidate,
			"status":     "GET " + api.PathQueryByID,
			"restart":    "POST " + api.PathQueryRestart,
			"delete":     "DELETE " + api.PathQueryByID,
			"list":       "GET " + api.PathQueries,
			"satellites": "GET " + api.PathSatellites,
		},
	})
}

func (f *Frontend) getRecord(w http.ResponseWriter, id string) (*registry.Record, bool) {
	rec, err := f.store.Get(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Consulta no encontrada")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Error procesando query: "+err.Error())
		return nil, false
	}
	return rec, true
}

func (f *Frontend) statusBody(rec *registry.Record) statusResponse {
	resp := statusResponse{
		ConsultaID:  rec.ID,
		Estado:      rec.State,
		Progreso:    rec.Progress,
		Mensaje:     rec.Message,
		Timestamp:   rec.UpdatedAt,
		RutaDestino: filepath.Join(f.cfg.DownloadPath, rec.ID),
		Etapa:       stageFor(rec),
	}

	if rec.State != registry.StateCompleted || len(rec.Results) == 0 {
		return resp
	}

	var rep processor.Report
	if err := json.Unmarshal(rec.Results, &rep); err != nil {
		level.Warn(f.logger).Log("msg", "stored results do not unmarshal", "consulta_id", rec.ID, "err", err)
		return resp
	}

	resp.TotalMB = rep.TotalMB
	if rep.DestPath != "" {
		resp.RutaDestino = rep.DestPath
	}
	resp.TotalFiles = &rep.TotalFiles
	resp.LustreFiles = &rep.Sources.Lustre.Total
	resp.S3Files = &rep.Sources.S3.Total
	return resp
}

// stageFor maps lifecycle state and progress onto the pipeline stage a
// poller sees.
func stageFor(rec *registry.Record) string {
	switch rec.State {
	case registry.StateReceived:
		return "en_cola"
	case registry.StateCompleted:
		return "finalizado"
	case registry.StateError:
		return "error"
	}

	switch {
	case rec.Progress < 20:
		return "preparacion"
	case rec.Progress < 85:
		return "recuperacion_lustre"
	case rec.Progress < 95:
		return "descarga_s3"
	default:
		return "reporte"
	}
}
