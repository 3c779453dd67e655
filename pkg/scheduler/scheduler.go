package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kumoreads/kumo/pkg/config"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/kumoreads/kumo/pkg/settings"
	"github.com/kumoreads/kumo/pkg/sources"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Scheduler periodically runs each subscribed source's latest-updates fetch.
// Sources are processed sequentially within a tick; a failing source is put
// into backoff and never aborts the rest of the tick.
type Scheduler struct {
	config *config.Config
	log    logger.Logger

	registry       *sources.Registry
	runner         *sources.Runner
	sourceService  *sources.Service
	settingService *settings.Service

	retry *RetryState
	clock Clock

	mu     sync.Mutex
	forced map[string]struct{}

	kick     chan struct{}
	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, db *bun.DB, registry *sources.Registry, runner *sources.Runner) *Scheduler {
	return &Scheduler{
		config: cfg,
		log:    logger.New(),

		registry:       registry,
		runner:         runner,
		sourceService:  sources.NewService(db),
		settingService: settings.NewService(db),

		retry: NewRetryState(),
		clock: systemClock{},

		forced: make(map[string]struct{}),

		kick:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithClock swaps the time source. Tests only.
func (s *Scheduler) WithClock(clock Clock) *Scheduler {
	s.clock = clock
	return s
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	duration := s.tickInterval()
	timer := time.NewTimer(duration)

	for {
		select {
		case <-s.shutdown:
			s.done <- struct{}{}
			return
		case <-s.kick:
			if err := s.Tick(context.Background()); err != nil {
				s.log.Err(err).Error("scheduler tick error")
			}
			timer.Reset(s.tickInterval())
		case <-timer.C:
			if err := s.Tick(context.Background()); err != nil {
				s.log.Err(err).Error("scheduler tick error")
			}
			timer.Reset(s.tickInterval())
		}
	}
}

func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	<-s.done
}

// ForceRefetch marks a source as due regardless of its refetch delay or
// backoff window and wakes the loop.
func (s *Scheduler) ForceRefetch(sourceID string) {
	s.mu.Lock()
	s.forced[sourceID] = struct{}{}
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) tickInterval() time.Duration {
	setting, err := s.settingService.Retrieve(context.Background())
	if err != nil {
		s.log.Err(err).Error("retrieve settings error")
		return time.Minute
	}
	return setting.FetchInterval
}

// Tick runs one scheduling pass over all subscribed sources.
func (s *Scheduler) Tick(ctx context.Context) error {
	setting, err := s.settingService.Retrieve(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	subscribed := true
	subscribedSources, err := s.sourceService.ListSources(ctx, sources.ListSourcesOptions{
		Subscribed: &subscribed,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	forced := s.takeForced()
	now := s.clock.Now()

	candidates := subscribedSources
	for id := range forced {
		if containsSource(subscribedSources, id) {
			continue
		}
		// An operator force bypasses the subscription gate too.
		source, err := s.sourceService.RetrieveSource(ctx, sources.RetrieveSourceOptions{ID: &id})
		if err != nil {
			s.log.Err(err).Warn("retrieve forced source error", logger.Data{"source_id": id})
			continue
		}
		candidates = append(candidates, source)
	}

	for _, source := range candidates {
		_, isForced := forced[source.ID]
		if !isForced {
			if !s.due(source, setting, now) {
				continue
			}
			if s.retry.Blocked(source.ID, now) {
				continue
			}
		}

		s.runSource(source, setting, now)
	}

	return nil
}

func containsSource(list []*models.Source, id string) bool {
	for _, source := range list {
		if source.ID == id {
			return true
		}
	}
	return false
}

func (s *Scheduler) due(source *models.Source, setting *models.Setting, now time.Time) bool {
	if source.LastFetchedLatestsAt == nil {
		return true
	}
	return now.Sub(*source.LastFetchedLatestsAt) >= setting.MinRefetchDelay
}

func (s *Scheduler) runSource(source *models.Source, setting *models.Setting, now time.Time) {
	adapter, ok := s.registry.Get(source.ID)
	if !ok {
		s.log.Warn("no adapter registered for subscribed source", logger.Data{"source_id": source.ID})
		return
	}

	// Prep a run-scoped context the way the process loop does.
	id, err := uuid.NewRandom()
	if err != nil {
		s.log.Err(err).Error("new uuid error")
		return
	}
	log := s.log.ID(id.String()).Root(logger.Data{"source_id": source.ID})
	ctx := log.WithContext(context.Background())

	run := s.runner.NewRunContext(adapter, log)
	if err := adapter.FetchLatest(ctx, run); err != nil {
		nextRetryAt := s.retry.RecordFailure(source.ID, now, setting.RetryBackoffBase)
		log.Err(err).Error("fetch latest error", logger.Data{"next_retry_at": nextRetryAt})
		return
	}

	s.retry.Clear(source.ID)
	if err := s.sourceService.MarkFetchedLatests(ctx, source.ID, now); err != nil {
		log.Err(err).Error("mark fetched error")
	}
}

func (s *Scheduler) takeForced() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	forced := s.forced
	s.forced = make(map[string]struct{})
	return forced
}
