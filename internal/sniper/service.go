package sniper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/trade_sniper/internal/cdp"
	"github.com/dgnsrekt/trade_sniper/internal/config"
	"github.com/dgnsrekt/trade_sniper/internal/notify"
	"github.com/dgnsrekt/trade_sniper/internal/relay"
	"github.com/dgnsrekt/trade_sniper/internal/snapshot"
	"github.com/dgnsrekt/trade_sniper/internal/storage"
)

// ErrNoTargets is returned by Start when the first discovery cycle finds no
// live search tab. Later cycles finding zero targets are not an error; the
// operator may open tabs while the process runs.
var ErrNoTargets = errors.New("no live search tabs found")

// Service assembles the connection manager, target registry, monitors and the
// pause coordinator into one running unit.
type Service struct {
	cfg      *config.Config
	manager  *cdp.Manager
	registry *Registry
	pause    *PauseState
	coord    *Coordinator
	gate     *Gate
	store    *snapshot.Store
	notifier *notify.Notifier
	journal  *storage.JSONLWriter
	broker   *relay.Broker

	rediscoverCh chan struct{}
}

func NewService(cfg *config.Config, manager *cdp.Manager, store *snapshot.Store, notifier *notify.Notifier, journal *storage.JSONLWriter, broker *relay.Broker) *Service {
	s := &Service{
		cfg:          cfg,
		manager:      manager,
		pause:        &PauseState{},
		gate:         NewGate(cfg.Cooldown()),
		store:        store,
		notifier:     notifier,
		journal:      journal,
		broker:       broker,
		rediscoverCh: make(chan struct{}, 1),
	}
	s.registry = NewRegistry(managerLister{manager}, s.spawnMonitor)
	s.coord = NewCoordinator(s.registry, s.pause, cfg.StatusPoll(), cfg.AutoResume, cfg.AutoResumeTimeout())
	s.coord.OnPause(func(t *Target) {
		s.emit(Event{Kind: EventPause, Target: t.Name, Actions: t.ActionCount()})
	})
	s.coord.OnResume(func(targets int, total int64) {
		s.emit(Event{Kind: EventResume, Detail: fmt.Sprintf("%d targets", targets), Actions: total})
	})

	manager.OnTransition(s.handleDown, s.handleUp)
	return s
}

// managerLister adapts the connection manager's page enumeration to the
// registry's lister interface.
type managerLister struct {
	m *cdp.Manager
}

func (l managerLister) listPages(ctx context.Context) ([]pageInfo, error) {
	pages, err := l.m.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pageInfo, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageInfo{TargetID: p.TargetID, URL: p.URL})
	}
	return out, nil
}

// Start runs the first discovery cycle and launches the discovery and
// coordination loops. Zero targets on the first cycle is fatal; the operator
// is expected to have the live searches open before launch.
func (s *Service) Start(ctx context.Context) error {
	s.registry.Discover(ctx)
	if s.registry.Count() == 0 {
		return ErrNoTargets
	}

	go s.discoveryLoop(ctx)
	go s.coord.Run(ctx)
	return nil
}

func (s *Service) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DiscoveryInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.rediscoverCh:
		}
		s.registry.Discover(ctx)
	}
}

// spawnMonitor attaches a page session for a discovered target and starts its
// monitor. Called by the registry during discovery.
func (s *Service) spawnMonitor(ctx context.Context, info pageInfo, target *Target) (*Monitor, error) {
	session, err := s.manager.AttachPage(ctx, info.TargetID)
	if err != nil {
		return nil, err
	}

	pg := newLivePage(session, s.manager.ReleaseSession)
	m := NewMonitor(target, pg, s.gate, s.pause, s.cfg.ScanInterval())
	m.OnAction(func(t *Target, c Candidate) {
		s.recordAction(pg, t, c)
	})
	m.OnDead(func(t *Target, err error) {
		s.registry.Remove(t.ID)
	})
	m.Start(ctx)
	return m, nil
}

// recordAction captures the evidence trail for a performed action: a page
// screenshot while the target is still paused, plus an optional notification.
// Evidence failures are logged only; the action itself already happened.
func (s *Service) recordAction(pg *livePage, t *Target, c Candidate) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EvalTimeout())
	defer cancel()

	if s.store != nil {
		img, err := pg.Screenshot(ctx)
		if err != nil {
			slog.Warn("action screenshot failed", "target", t.Name, "error", err)
		} else {
			meta := snapshot.ActionMeta{
				ID:           uuid.NewString(),
				TargetID:     t.ID,
				TargetName:   t.Name,
				TargetURL:    t.URL,
				CandidateKey: c.Key,
				ButtonText:   c.ButtonText,
				RowText:      c.RowText,
				ActionNumber: t.ActionCount(),
				Format:       "jpeg",
				SizeBytes:    len(img),
				CreatedAt:    time.Now().UTC(),
			}
			if err := s.store.Save(meta, img); err != nil {
				slog.Warn("action evidence save failed", "target", t.Name, "error", err)
			} else {
				slog.Debug("action evidence saved", "snapshot_id", meta.ID, "target", t.Name)
			}
		}
	}

	if err := s.notifier.Action(ctx, t.Name, c.RowText, t.ActionCount()); err != nil {
		slog.Warn("action notification failed", "target", t.Name, "error", err)
	}

	s.emit(Event{Kind: EventAction, Target: t.Name, Detail: c.RowText, Actions: t.ActionCount()})
}

// handleDown reacts to a lost browser link: all targets are dropped and no
// scan runs until the link is restored and discovery rebuilds the set.
func (s *Service) handleDown() {
	slog.Warn("browser link lost, suspending all targets")
	s.emit(Event{Kind: EventDisconnect})
	s.registry.Clear()
	if s.pause.Held() {
		// A pending pause cycle cannot complete against a cleared set.
		s.coord.Resume()
	}
}

// handleUp reacts to a restored link: previous sessions are gone, so a fresh
// discovery cycle rebuilds the target set from scratch.
func (s *Service) handleUp() {
	slog.Info("browser link restored, rediscovering targets")
	s.emit(Event{Kind: EventReconnect})
	select {
	case s.rediscoverCh <- struct{}{}:
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.notifier.Reconnected(ctx); err != nil {
		slog.Warn("reconnect notification failed", "error", err)
	}
}

// Resume forwards an operator resume signal to the coordinator.
func (s *Service) Resume() { s.coord.Resume() }

// Stop shuts down every monitor; the browser and its tabs stay open.
func (s *Service) Stop() {
	s.registry.Clear()
}

// Status is the aggregate state exposed on the control API.
type Status struct {
	Connection   string         `json:"connection"`
	Phase        string         `json:"phase"`
	TotalActions int64          `json:"total_actions"`
	PausedTarget string         `json:"paused_target,omitempty"`
	Targets      []TargetStatus `json:"targets"`
}

func (s *Service) Status() Status {
	targets := s.registry.Targets()
	out := Status{
		Connection:   s.manager.State().String(),
		Phase:        s.coord.Phase(),
		TotalActions: s.coord.TotalActions(),
		Targets:      make([]TargetStatus, 0, len(targets)),
	}
	if waiting, id := s.pause.Waiting(); waiting {
		out.PausedTarget = id
	}
	for _, t := range targets {
		out.Targets = append(out.Targets, t.Status())
	}
	return out
}
