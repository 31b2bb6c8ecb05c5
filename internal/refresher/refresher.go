// Package refresher proactively refreshes OAuth credentials ahead of
// expiry so foreground requests rarely pay for a token exchange.
package refresher

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/pilot/internal/auth"
	"github.com/marcus/pilot/internal/logging"
)

// defaultLead is how far ahead of expiry a token is refreshed when the
// provider has no specific lead registered.
const defaultLead = 5 * time.Minute

// refreshLeads holds per-provider refresh leads. Providers with slow
// token endpoints get a longer head start.
var refreshLeads = map[string]time.Duration{
	"anthropic": 5 * time.Minute,
	"gemini":    10 * time.Minute,
}

// Refresher sweeps stored credentials on a cron schedule.
type Refresher struct {
	mgr  *auth.Manager
	cron *cron.Cron
}

// New creates a refresher over the credential manager.
func New(mgr *auth.Manager) *Refresher {
	return &Refresher{mgr: mgr, cron: cron.New()}
}

// Start begins the background sweep (every two minutes).
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc("@every 2m", r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Refresher) sweep() {
	log := logging.Component("refresher")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, provider := range r.mgr.StoredProviders() {
		lead, ok := refreshLeads[provider]
		if !ok {
			lead = defaultLead
		}
		if err := r.mgr.RefreshIfExpiring(ctx, provider, lead); err != nil {
			log.Warn().Err(err).Str("provider", provider).Msg("background refresh failed")
			continue
		}
	}
}
