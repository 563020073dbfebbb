package registry

import (
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/lanot/goesrecover/pkg/query"
	"github.com/lanot/goesrecover/pkg/util"
)

// Query lifecycle states.
const (
	StateReceived   = "recibido"
	StateProcessing = "procesando"
	StateCompleted  = "completado"
	StateError      = "error"
)

const (
	recordBucket = "consultas"

	// owner read/write
	fileMode = 0o600
)

var (
	defaultTimeout = 1 * time.Second

	// ErrNotFound is returned for ids with no record.
	ErrNotFound = fmt.Errorf("query record not found")
)

// Record is the persistent state of one query.
type Record struct {
	ID        string          `json:"consulta_id"`
	State     string          `json:"estado"`
	Progress  int             `json:"progreso"`
	Message   string          `json:"mensaje"`
	Query     *query.Query    `json:"query"`
	Results   json.RawMessage `json:"resultados,omitempty"`
	CreatedAt string          `json:"timestamp_creacion"`
	UpdatedAt string          `json:"timestamp_actualizacion"`
	User      string          `json:"usuario,omitempty"`
}

type Config struct {
	Path string `yaml:"path"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Path, util.PrefixConfig(prefix, "path"), "consultas_goes.db", "Path of the query record database.")
}

// Registry is the durable store of query records.
type Registry struct {
	cfg    *Config
	db     *bolt.DB
	logger log.Logger
}

func New(cfg *Config, logger log.Logger) (*Registry, error) {
	db, err := bolt.Open(cfg.Path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening query database %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating record bucket: %w", err)
	}

	return &Registry{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Create persists a fresh record in the received state and returns it. An
// empty user is stored as anonimo.
func (r *Registry) Create(q *query.Query, user string) (*Record, error) {
	if user == "" {
		user = "anonimo"
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rec := &Record{
		ID:        uuid.New().String(),
		State:     StateReceived,
		Progress:  0,
		Message:   "Consulta recibida",
		Query:     q,
		CreatedAt: now,
		UpdatedAt: now,
		User:      user,
	}

	if err := r.put(rec); err != nil {
		return nil, err
	}
	level.Info(r.logger).Log("msg", "query record created", "consulta_id", rec.ID, "usuario", user)
	return rec, nil
}

// Get returns one record or ErrNotFound.
func (r *Registry) Get(id string) (*Record, error) {
	var rec *Record
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(recordBucket)).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		rec = &Record{}
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateState moves a record through the lifecycle.
func (r *Registry) UpdateState(id, state string, progress int, message string) error {
	return r.update(id, func(rec *Record) {
		rec.State = state
		rec.Progress = progress
		rec.Message = message
	})
}

// SaveResults stores the final report under resultados and moves the
// record to its completed state in the same write.
func (r *Registry) SaveResults(id string, results interface{}, message string) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}
	return r.update(id, func(rec *Record) {
		rec.Results = raw
		rec.State = StateCompleted
		rec.Progress = 100
		rec.Message = message
	})
}

// Reset returns a record to the received state so it can be processed
// again. Stale results are dropped so a partial rerun cannot be mistaken
// for the previous report.
func (r *Registry) Reset(id string) error {
	return r.update(id, func(rec *Record) {
		rec.State = StateReceived
		rec.Progress = 0
		rec.Message = "Consulta reiniciada"
		rec.Results = nil
	})
}

// Delete removes the record.
func (r *Registry) Delete(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// List returns records, newest first, optionally filtered by state.
// limit <= 0 means no limit.
func (r *Registry) List(state string, limit int) ([]*Record, error) {
	var out []*Record
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordBucket)).ForEach(func(_, v []byte) error {
			rec := &Record{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			if state != "" && rec.State != state {
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PendingIDs returns the ids of records that still need processing:
// received ones, and processing ones interrupted by a crash or restart.
func (r *Registry) PendingIDs() ([]string, error) {
	var ids []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordBucket)).ForEach(func(k, v []byte) error {
			rec := &Record{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			if rec.State == StateReceived || rec.State == StateProcessing {
				ids = append(ids, rec.ID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Registry) put(rec *Record) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(recordBucket)).Put([]byte(rec.ID), raw)
	})
}

func (r *Registry) update(id string, mutate func(*Record)) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		v := b.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}

		rec := &Record{}
		if err := json.Unmarshal(v, rec); err != nil {
			return err
		}
		mutate(rec)
		rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), raw)
	})
}
