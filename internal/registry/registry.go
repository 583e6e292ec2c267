package registry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"colorflow/internal/config"
	"colorflow/internal/logging"
	"colorflow/internal/store"
)

// Registry tracks site daemons and derives their liveness from heartbeats.
// Online status is a view computed on read, never stored.
type Registry struct {
	store  *store.Store
	window time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// SiteStatus is a site plus its derived online flag.
type SiteStatus struct {
	*store.Site
	Online bool
}

// New builds a Registry with the configured online window.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	window := time.Duration(cfg.Sites.OnlineWindowSeconds) * time.Second
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Registry{
		store:  st,
		window: window,
		log:    logging.WithComponent(logger, "registry"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Heartbeat records a daemon check-in, registering the site on first contact.
func (r *Registry) Heartbeat(ctx context.Context, name string) (*store.Site, error) {
	site, err := r.store.TouchSiteHeartbeat(ctx, name, r.now())
	if err != nil {
		return nil, err
	}
	r.log.Debug("heartbeat", logging.String("site", site.Name))
	return site, nil
}

// Create registers a site with an export path by admin action.
func (r *Registry) Create(ctx context.Context, name, exportPath string) (*store.Site, error) {
	site, err := r.store.CreateSite(ctx, name, exportPath)
	if err != nil {
		return nil, err
	}
	r.log.Info("site registered", logging.String("site", site.Name))
	return site, nil
}

// Get returns a site by name, or nil when unknown.
func (r *Registry) Get(ctx context.Context, name string) (*store.Site, error) {
	return r.store.GetSiteByName(ctx, strings.TrimSpace(name))
}

// List returns all sites with derived online status.
func (r *Registry) List(ctx context.Context) ([]SiteStatus, error) {
	sites, err := r.store.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]SiteStatus, 0, len(sites))
	for _, site := range sites {
		statuses = append(statuses, SiteStatus{Site: site, Online: r.IsOnline(site)})
	}
	return statuses, nil
}

// IsOnline reports whether a site heartbeated within the online window.
func (r *Registry) IsOnline(site *store.Site) bool {
	if site == nil || site.LastHeartbeat == nil {
		return false
	}
	return r.now().Sub(*site.LastHeartbeat) < r.window
}

// Window exposes the configured online window.
func (r *Registry) Window() time.Duration {
	return r.window
}
