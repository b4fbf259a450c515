package sniper

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/trade_sniper/internal/cdp"
)

// livePage adapts a CDP page session to the monitor's page interface.
type livePage struct {
	session *cdp.PageSession
	release func(*cdp.PageSession)
}

func newLivePage(session *cdp.PageSession, release func(*cdp.PageSession)) *livePage {
	return &livePage{session: session, release: release}
}

func (p *livePage) Candidates(ctx context.Context) ([]Candidate, error) {
	var out struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := p.session.Eval(ctx, jsScanCandidates(), &out); err != nil {
		return nil, err
	}
	return out.Candidates, nil
}

func (p *livePage) Click(ctx context.Context, x, y float64) error {
	return p.session.Click(ctx, x, y)
}

func (p *livePage) WatchMutations(ctx context.Context, notify func()) error {
	if err := p.session.Bind(ctx, MutationBinding, func(string) { notify() }); err != nil {
		return err
	}
	return p.session.Eval(ctx, jsInstallObserver(), nil)
}

func (p *livePage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.session.Screenshot(ctx)
}

func (p *livePage) Detach() {
	// Best-effort observer removal so the tab stays clean for manual use;
	// skipped naturally when the session is already invalid.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	if err := p.session.Eval(ctx, jsRemoveObserver(), nil); err != nil {
		slog.Debug("observer removal failed", "target_id", p.session.TargetID(), "error", err)
	}
	cancel()

	if p.release != nil {
		p.release(p.session)
	} else {
		p.session.Detach()
	}
}
