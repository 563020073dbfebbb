package pool

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/lanot/goesrecover/pkg/util"
)

const queueLengthReportDuration = 15 * time.Second

var (
	metricWorkQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goesrecover",
		Name:      "work_queue_length",
		Help:      "Current length of the retrieval work queue.",
	})

	metricWorkQueueMax = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goesrecover",
		Name:      "work_queue_max",
		Help:      "Maximum number of items in the retrieval work queue.",
	})
)

// JobFunc does the work for one payload. The context carries the per-job
// execution deadline.
type JobFunc func(ctx context.Context, payload interface{}) error

// Result is the outcome of one job.
type Result struct {
	Payload  interface{}
	Err      error
	TimedOut bool
}

type Config struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueDepth int `yaml:"queue_depth"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.QueueDepth = 10000
	f.IntVar(&cfg.MaxWorkers, util.PrefixConfig(prefix, "max-workers"), 8, "Number of concurrent retrieval workers.")
}

type job struct {
	ctx     context.Context
	payload interface{}
	fn      JobFunc
	timeout time.Duration

	result  chan Result
	stopped *atomic.Bool
}

// Pool runs retrieval jobs on a fixed set of workers shared by every
// query.
type Pool struct {
	cfg  *Config
	size *atomic.Int32

	workQueue  chan *job
	shutdownCh chan struct{}
}

func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		cfg = defaultConfig()
	}

	q := make(chan *job, cfg.QueueDepth)
	p := &Pool{
		cfg:        cfg,
		size:       atomic.NewInt32(0),
		workQueue:  q,
		shutdownCh: make(chan struct{}),
	}

	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker(q)
	}

	p.reportQueueLength()
	metricWorkQueueMax.Set(float64(cfg.QueueDepth))

	return p
}

// RunJobs feeds every payload through fn with bounded concurrency and
// returns a channel yielding one Result per payload, in submission order.
// timeout bounds each job from the moment a worker picks it up; zero means
// no limit. Cancelling ctx fails the jobs that have not finished.
func (p *Pool) RunJobs(ctx context.Context, payloads []interface{}, timeout time.Duration, fn JobFunc) <-chan Result {
	stopped := atomic.NewBool(false)
	jobs := make([]*job, len(payloads))
	for i, payload := range payloads {
		jobs[i] = &job{
			ctx:     ctx,
			payload: payload,
			fn:      fn,
			timeout: timeout,
			result:  make(chan Result, 1),
			stopped: stopped,
		}
	}

	// feed the shared queue without blocking the caller; a query can be
	// larger than the queue
	go func() {
		for _, j := range jobs {
			select {
			case p.workQueue <- j:
				p.size.Inc()
			case <-ctx.Done():
				stopped.Store(true)
				j.result <- Result{Payload: j.payload, Err: ctx.Err()}
			}
		}
	}()

	out := make(chan Result)
	go func() {
		defer close(out)
		for _, j := range jobs {
			out <- <-j.result
		}
	}()
	return out
}

func (p *Pool) Shutdown() {
	close(p.workQueue)
	close(p.shutdownCh)
}

func (p *Pool) worker(q <-chan *job) {
	for j := range q {
		p.size.Dec()

		if j.stopped.Load() || j.ctx.Err() != nil {
			j.result <- Result{Payload: j.payload, Err: context.Canceled}
			continue
		}
		j.result <- p.run(j)
	}
}

func (p *Pool) run(j *job) Result {
	ctx := j.ctx
	cancel := func() {}
	if j.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
	}
	defer cancel()

	err := j.fn(ctx, j.payload)
	return Result{
		Payload:  j.payload,
		Err:      err,
		TimedOut: err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
}

func (p *Pool) reportQueueLength() {
	ticker := time.NewTicker(queueLengthReportDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metricWorkQueueLength.Set(float64(p.size.Load()))
			case <-p.shutdownCh:
				return
			}
		}
	}()
}

func defaultConfig() *Config {
	return &Config{
		MaxWorkers: 8,
		QueueDepth: 10000,
	}
}
