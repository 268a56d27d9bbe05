package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Config holds configuration for the scheduler.
type Config struct {
	WorkerCount  int
	JobDelay     time.Duration
	JobTimeout   time.Duration
	QueueSize    int
	RunOnStartup bool
	Location     *time.Location
}

// EntryInfo describes a registered job.
type EntryInfo struct {
	Name string
	Spec string
	Next time.Time
}

type entry struct {
	spec string
	job  Job
	id   cron.EntryID
}

// Scheduler fires registered jobs on their cron specs and hands them to the
// worker pool. A job that is still queued or running is not submitted again.
type Scheduler struct {
	cron         *cron.Cron
	workerPool   *WorkerPool
	runOnStartup bool
	log          logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]*entry
	pending map[string]bool
}

// New creates a scheduler. Jobs are added with Register before Start.
func New(cfg Config, log logrus.FieldLogger) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	pool := NewWorkerPool(cfg.WorkerCount, cfg.JobDelay, cfg.QueueSize, log.WithField("component", "worker_pool"))
	pool.SetJobTimeout(cfg.JobTimeout)

	cronLog := cron.PrintfLogger(log.WithField("component", "cron"))
	s := &Scheduler{
		cron:         cron.New(cron.WithLocation(loc), cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		workerPool:   pool,
		runOnStartup: cfg.RunOnStartup,
		log:          log,
		entries:      make(map[string]*entry),
		pending:      make(map[string]bool),
	}
	pool.onDone(s.release)

	log.WithFields(logrus.Fields{
		"workers":  cfg.WorkerCount,
		"queue":    cfg.QueueSize,
		"location": loc.String(),
	}).Info("Scheduler initialized")
	return s
}

// Register schedules job on a standard five-field cron spec (descriptors
// such as @daily are accepted).
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.submit(name) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}
	s.entries[name] = &entry{spec: spec, job: job, id: id}

	s.log.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("Job registered")
	return nil
}

// Start launches the worker pool and the cron loop.
func (s *Scheduler) Start() {
	s.log.Info("Starting scheduler")

	s.workerPool.Start()

	if s.runOnStartup {
		s.log.Info("Scheduler: running all jobs on startup")
		for _, name := range s.names() {
			s.submit(name)
		}
	}

	s.cron.Start()
	for _, info := range s.Entries() {
		s.log.WithFields(logrus.Fields{"job": info.Name, "next": info.Next}).Info("Next run scheduled")
	}
}

// TriggerNow submits the named job immediately.
func (s *Scheduler) TriggerNow(name string) error {
	s.mu.Lock()
	_, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	s.log.WithField("job", name).Info("Scheduler: manual trigger")
	return s.submit(name)
}

// Job returns the registered job with the given name.
func (s *Scheduler) Job(name string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return e.job, true
}

// Entries lists registered jobs sorted by name. Next is zero before Start.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]EntryInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, EntryInfo{Name: name, Spec: e.spec, Next: s.cron.Entry(e.id).Next})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Shutdown stops the cron loop, then drains the worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.log.Info("Scheduler: initiating graceful shutdown")

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
		s.log.Warn("Scheduler: timeout waiting for cron loop to stop")
	}

	s.workerPool.Shutdown(timeout)
	s.log.Info("Scheduler: shutdown complete")
}

func (s *Scheduler) submit(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown job %q", name)
	}
	if s.pending[name] {
		s.mu.Unlock()
		s.log.WithField("job", name).Warn("Job still running, skipping this run")
		return nil
	}
	s.pending[name] = true
	s.mu.Unlock()

	if err := s.workerPool.Submit(e.job); err != nil {
		s.release(e.job)
		s.log.WithField("job", name).WithError(err).Error("Failed to submit job")
		return err
	}
	return nil
}

func (s *Scheduler) release(job Job) {
	s.mu.Lock()
	delete(s.pending, job.Name())
	s.mu.Unlock()
}

func (s *Scheduler) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
