package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/config"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/rpc"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"github.com/GriffinCanCode/scripthost/backend/internal/hostcall"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scripthost/backend/internal/logging"
	"github.com/GriffinCanCode/scripthost/backend/internal/sandbox"
	"github.com/GriffinCanCode/scripthost/backend/internal/shared/id"
	"github.com/GriffinCanCode/scripthost/backend/internal/sniff"
	"go.uber.org/zap"
)

// Supervisor owns every live execution context
type Supervisor struct {
	cfg      config.Config
	log      *zap.Logger
	metrics  *monitoring.Metrics
	detector *sniff.Detector
	registry *hostcall.Registry
	slots    *slots
	breaker  *resilience.Breaker

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// Option customizes a Supervisor
type Option func(*Supervisor)

// WithRegistry replaces the standard host method registry
func WithRegistry(r *hostcall.Registry) Option {
	return func(s *Supervisor) { s.registry = r }
}

// WithDetector replaces the signature detector built from config
func WithDetector(d *sniff.Detector) Option {
	return func(s *Supervisor) { s.detector = d }
}

// New creates a supervisor. metrics may be nil.
func New(cfg config.Config, log *zap.Logger, metrics *monitoring.Metrics, opts ...Option) (*Supervisor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	s := &Supervisor{
		cfg:      cfg,
		log:      log.Named("supervisor"),
		metrics:  metrics,
		slots:    newSlots(cfg.Sandbox.MaxContexts),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.detector == nil {
		d, err := sniff.WithFiles(cfg.Sniff.Signatures, log)
		if err != nil {
			return nil, fmt.Errorf("load signatures: %w", err)
		}
		s.detector = d
	}
	if s.registry == nil {
		r, err := hostcall.Standard(cfg.Fetch, s.detector, log, metrics)
		if err != nil {
			return nil, fmt.Errorf("host methods: %w", err)
		}
		s.registry = r
	}

	maxFaults := uint32(max(cfg.Breaker.MaxFaults, 1))
	s.breaker = resilience.New("spawn", resilience.Settings{
		Timeout: cfg.Breaker.Timeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= maxFaults
		},
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.BreakerState.Set(float64(to))
			s.log.Warn("breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s, nil
}

// Registry returns the host method registry
func (s *Supervisor) Registry() *hostcall.Registry {
	return s.registry
}

// Detector returns the content type detector
func (s *Supervisor) Detector() *sniff.Detector {
	return s.detector
}

// Spawn starts a new execution context evaluating source
func (s *Supervisor) Spawn(ctx context.Context, source string, opts ...SpawnOption) (*Session, error) {
	if source == "" {
		return nil, ErrEmptySource
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrSupervisorClosed
	}

	o := spawnOptions{timeout: s.cfg.Sandbox.Timeout}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	if err := s.slots.acquire(ctx, s.cfg.Sandbox.AcquireTimeout); err != nil {
		return nil, err
	}
	s.metrics.SlotWait.Observe(time.Since(start).Seconds())

	done, err := s.breaker.Allow()
	if err != nil {
		s.slots.release()
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrSpawnsSuspended, err)
		}
		return nil, err
	}

	sess, err := s.start(source, o, done)
	if err != nil {
		done(true)
		s.slots.release()
		return nil, err
	}
	return sess, nil
}

func (s *Supervisor) start(source string, o spawnOptions, done func(bool)) (*Session, error) {
	contextID := id.NewContextID().String()
	log := logging.ForContext(s.log, contextID)

	hostEnd, contextEnd := channel.Pipe()
	ch := channel.New(hostEnd, channel.Options{Ready: true, Logger: log})

	sess := newSession(s, contextID, ch, log, done)
	sess.rpc = rpc.New(ch, rpc.Options{
		Logger:      log,
		Initialized: true,
		Observer: func(req rpc.Request, elapsed time.Duration, err error) {
			log.Debug("host request answered",
				zap.String(logging.KeyRequestID, req.ID),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		},
	})
	sess.rpc.RegisterHandler(sess.serve)
	ch.Route(sess.route)

	rt, err := sandbox.New(sandbox.Config{
		MaxCallStack:   s.cfg.Sandbox.MaxCallStack,
		PreReadyBuffer: s.cfg.Sandbox.PreReadyBuffer,
		EnableConsole:  s.cfg.Sandbox.EnableConsole,
		MaxConsole:     sandbox.DefaultConfig().MaxConsole,
	}, contextEnd, log)
	if err != nil {
		ch.Release()
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	sess.runtime = rt

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		rt.Close()
		ch.Release()
		return nil, ErrSupervisorClosed
	}
	s.sessions[contextID] = sess
	s.mu.Unlock()

	s.metrics.ContextStarted()
	if o.timeout > 0 {
		sess.arm(o.timeout)
	}
	ch.Send(wire.Eval{ID: contextID, Source: source})

	log.Info("context spawned", zap.Duration("timeout", o.timeout))
	return sess, nil
}

// Get returns a session by id
func (s *Supervisor) Get(contextID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[contextID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, contextID)
	}
	return sess, nil
}

// List returns every session, oldest first
func (s *Supervisor) List() []Info {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Created.Before(infos[j].Created) })
	return infos
}

// Stats reports capacity and breaker state
func (s *Supervisor) Stats() map[string]any {
	s.mu.RLock()
	count := len(s.sessions)
	s.mu.RUnlock()

	return map[string]any{
		"sessions":  count,
		"capacity":  s.slots.size,
		"available": s.slots.available(),
		"breaker":   s.breaker.State().String(),
	}
}

// Close closes every session. Later spawns fail with ErrSupervisorClosed.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			sess.Close()
		}(sess)
	}
	wg.Wait()
	s.log.Info("supervisor closed", zap.Int("sessions", len(sessions)))
}

func (s *Supervisor) forget(contextID string) {
	s.mu.Lock()
	delete(s.sessions, contextID)
	s.mu.Unlock()
}
