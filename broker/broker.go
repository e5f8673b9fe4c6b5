// Package broker is the privileged half of credkeeper. It owns the vault
// session, the persisted settings, and the capture journal; page-side logic
// reaches it only through bridge requests.
//
// The pipeline:
//
//	pagewatch → formscan/credsave/autofill → bridge → broker → vault
//
// Handle is the single entry point: a type switch over the closed request
// union. Adding a request type without extending Handle surfaces as an
// ErrUnhandledRequest at the first call, not as a silently ignored string.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/credkeeper/auth"
	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/broker/internal/store"
	"github.com/hazyhaar/credkeeper/broker/internal/vault"
	"github.com/hazyhaar/credkeeper/idgen"
	"github.com/hazyhaar/credkeeper/platform"
	"github.com/hazyhaar/credkeeper/watch"
)

// Config tunes the broker.
type Config struct {
	// DBPath is the SQLite file holding settings and the capture journal.
	DBPath string
	// SettingsPollInterval drives the hot-reload watcher. Default: 2s.
	SettingsPollInterval time.Duration
	// TokenExpiryMargin is how close to expiry a session token may get
	// before vault calls are refused with a re-login demand. Default: 1m.
	TokenExpiryMargin time.Duration
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "credkeeper.db"
	}
	if c.SettingsPollInterval <= 0 {
		c.SettingsPollInterval = 2 * time.Second
	}
	if c.TokenExpiryMargin <= 0 {
		c.TokenExpiryMargin = time.Minute
	}
}

// Broker mediates between page logic and the vault.
type Broker struct {
	store  *store.Store
	logger *slog.Logger
	config Config
	newID  idgen.Generator

	mu       sync.Mutex
	settings store.Settings
	client   *vault.Client

	bridge  *bridge.Bridge
	watcher *watch.Watcher
}

// New opens the broker database, loads settings, and restores the vault
// session when a server URL and token survive from a previous run.
func New(cfg Config, logger *slog.Logger) (*Broker, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	b := &Broker{
		store:  s,
		logger: logger,
		config: cfg,
		newID:  idgen.Default,
	}
	if err := b.ReloadSettings(context.Background()); err != nil {
		s.Close()
		return nil, err
	}

	b.watcher = watch.New(s.DB, watch.Options{
		Interval: cfg.SettingsPollInterval,
		Logger:   logger,
	})
	return b, nil
}

// Close releases the database.
func (b *Broker) Close() error {
	return b.store.Close()
}

// Attach wires the broker into a bridge: the bridge's requests dispatch to
// Handle, and page-directed requests leave through the same bridge.
func (b *Broker) Attach(br *bridge.Bridge) {
	b.bridge = br
	br.AttachBroker(b.Handle)
}

// Start runs the settings hot-reload loop until ctx is cancelled. Edits
// made to the settings row by another process take effect without a broker
// restart.
func (b *Broker) Start(ctx context.Context) {
	b.watcher.OnChange(ctx, func() error {
		return b.ReloadSettings(ctx)
	})
}

// WatchStats exposes the hot-reload counters for the status surface.
func (b *Broker) WatchStats() watch.Stats {
	return b.watcher.Stats()
}

// ReloadSettings re-reads the settings row and rebuilds the vault client
// when the server or token changed.
func (b *Broker) ReloadSettings(ctx context.Context) error {
	set, err := b.store.LoadSettings(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rebuilt := false
	if set.ServerURL != b.settings.ServerURL {
		b.client = nil
		if set.ServerURL != "" {
			c, err := vault.New(set.ServerURL)
			if err != nil {
				b.logger.Warn("broker: stored server url rejected", "error", err)
			} else {
				b.client = c
				rebuilt = true
			}
		}
	}
	if b.client != nil && set.Token != b.settings.Token {
		b.client.SetToken(set.Token)
	}
	if rebuilt && set.Token != "" {
		b.client.SetToken(set.Token)
	}
	b.settings = set
	return nil
}

// Settings returns a copy of the current settings, token redacted.
func (b *Broker) Settings() bridge.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bridge.Settings{
		AutoSave:      b.settings.AutoSave,
		ExcludedSites: append([]string(nil), b.settings.ExcludedSites...),
	}
}

// RecentCaptures exposes the capture journal for the status surface.
func (b *Broker) RecentCaptures(ctx context.Context, limit int) ([]store.Capture, error) {
	return b.store.RecentCaptures(ctx, limit)
}

// Handle dispatches one bridge request. Domain failures (vault errors,
// missing session) come back inside the response; the error return is for
// transport-level trouble only.
func (b *Broker) Handle(ctx context.Context, req bridge.Request) (*bridge.Response, error) {
	switch r := req.(type) {
	case bridge.Login:
		return b.handleLogin(ctx, r)
	case bridge.SaveRegistration:
		return b.handleSave(ctx, r)
	case bridge.GetRegistrations:
		return b.handleList(ctx)
	case bridge.GetRegistrationsByDomain:
		return b.handleListByDomain(ctx, r)
	case bridge.GetRegistrationByID:
		return b.handleGet(ctx, r)
	case bridge.GetRegistrationPassword:
		return b.handlePassword(ctx, r)
	case bridge.UpdateRegistration:
		return b.handleUpdate(ctx, r)
	case bridge.UpdateRegistrationPassword:
		return b.handleUpdatePassword(ctx, r)
	case bridge.DeleteRegistration:
		return b.handleDelete(ctx, r)
	case bridge.GetAutoSaveSetting:
		return bridge.OK(map[string]bool{"auto_save": b.Settings().AutoSave}), nil
	case bridge.GetConfig:
		return bridge.OK(b.Settings()), nil
	case bridge.SaveConfig:
		return b.handleSaveConfig(ctx, r)
	case bridge.StartFormDetection:
		if b.bridge == nil {
			return bridge.Fail("broker: no bridge attached"), nil
		}
		if err := b.bridge.SendToPage(ctx, r); err != nil {
			return bridge.Fail(err.Error()), nil
		}
		return bridge.OK(nil), nil
	}
	return nil, &bridge.ErrUnhandledRequest{Kind: req.Kind()}
}

func (b *Broker) handleLogin(ctx context.Context, r bridge.Login) (*bridge.Response, error) {
	client, err := vault.New(r.ServerURL)
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	if err := client.Login(ctx, r.Username, r.Password); err != nil {
		return bridge.Fail(err.Error()), nil
	}

	b.mu.Lock()
	b.client = client
	b.settings.ServerURL = r.ServerURL
	b.settings.Username = r.Username
	b.settings.Token = client.Token()
	set := b.settings
	b.mu.Unlock()

	if err := b.store.SaveSettings(ctx, set); err != nil {
		b.logger.Error("broker: persist session failed", "error", err)
	}
	b.logger.Info("broker: vault session established", "server", r.ServerURL, "username", r.Username)
	return bridge.OK(nil), nil
}

// vaultClient returns the live client, refusing when there is no session or
// the token is at (or past) the expiry margin.
func (b *Broker) vaultClient() (*vault.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil || b.client.Token() == "" {
		return nil, errors.New("broker: not logged in to a vault")
	}
	if auth.TokenLapsed(b.client.Token(), b.config.TokenExpiryMargin) {
		return nil, errors.New("broker: vault session expired, login required")
	}
	return b.client, nil
}

func (b *Broker) handleSave(ctx context.Context, r bridge.SaveRegistration) (*bridge.Response, error) {
	// The watcher already skips excluded sites at instrumentation time, but
	// pages wired before an exclusion was added still carry live handlers.
	// The write side re-checks so a stale page cannot store credentials.
	if platform.HostExcluded(r.Draft.PlatformName, b.Settings().ExcludedSites) {
		return bridge.Fail("broker: site is excluded from capture"), nil
	}

	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}

	reg, err := client.Create(ctx, r.Draft)
	if err != nil {
		var conflict *vault.ConflictError
		if errors.As(err, &conflict) {
			return &bridge.Response{
				Error:    conflict.Message,
				Conflict: true,
				ConflictData: &bridge.ConflictData{
					ExistingID:   conflict.ExistingID,
					Message:      conflict.Message,
					ConflictType: conflict.ConflictType,
				},
			}, nil
		}
		return bridge.Fail(err.Error()), nil
	}

	b.journal(ctx, r.Draft.PlatformName, identityOf(r.Draft), store.OutcomeSaved)
	return bridge.OK(reg), nil
}

func (b *Broker) handleList(ctx context.Context) (*bridge.Response, error) {
	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	regs, err := client.List(ctx)
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	return bridge.OK(regs), nil
}

// handleListByDomain filters the full list broker-side: the vault API has
// no domain filter, and the platform match rules (www/m/mobile stripping)
// live here anyway.
func (b *Broker) handleListByDomain(ctx context.Context, r bridge.GetRegistrationsByDomain) (*bridge.Response, error) {
	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	regs, err := client.List(ctx)
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}

	matched := make([]bridge.Registration, 0, len(regs))
	for _, reg := range regs {
		if platform.Matches(reg.PlatformName, r.Host) {
			matched = append(matched, reg)
		}
	}
	return bridge.OK(matched), nil
}

func (b *Broker) handleGet(ctx context.Context, r bridge.GetRegistrationByID) (*bridge.Response, error) {
	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	reg, err := client.Get(ctx, r.ID)
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	return bridge.OK(reg), nil
}

func (b *Broker) handlePassword(ctx context.Context, r bridge.GetRegistrationPassword) (*bridge.Response, error) {
	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	pw, err := client.Password(ctx, r.ID)
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	return bridge.OK(map[string]string{"password": pw}), nil
}

func (b *Broker) handleUpdate(ctx context.Context, r bridge.UpdateRegistration) (*bridge.Response, error) {
	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	reg, err := client.Update(ctx, r.ID, r.Draft)
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	b.journal(ctx, reg.PlatformName, reg.DisplayName(), store.OutcomeUpdated)
	return bridge.OK(reg), nil
}

func (b *Broker) handleUpdatePassword(ctx context.Context, r bridge.UpdateRegistrationPassword) (*bridge.Response, error) {
	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	reg, err := client.Update(ctx, r.ID, bridge.RegistrationDraft{Password: r.Password})
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	b.journal(ctx, reg.PlatformName, reg.DisplayName(), store.OutcomeUpdated)
	return bridge.OK(reg), nil
}

func (b *Broker) handleDelete(ctx context.Context, r bridge.DeleteRegistration) (*bridge.Response, error) {
	client, err := b.vaultClient()
	if err != nil {
		return bridge.Fail(err.Error()), nil
	}
	if err := client.Delete(ctx, r.ID); err != nil {
		return bridge.Fail(err.Error()), nil
	}
	return bridge.OK(nil), nil
}

func (b *Broker) handleSaveConfig(ctx context.Context, r bridge.SaveConfig) (*bridge.Response, error) {
	b.mu.Lock()
	b.settings.AutoSave = r.Settings.AutoSave
	b.settings.ExcludedSites = normalizeSites(r.Settings.ExcludedSites)
	set := b.settings
	b.mu.Unlock()

	if err := b.store.SaveSettings(ctx, set); err != nil {
		return bridge.Fail(err.Error()), nil
	}
	return bridge.OK(nil), nil
}

func (b *Broker) journal(ctx context.Context, platformName, identity string, outcome store.CaptureOutcome) {
	err := b.store.LogCapture(ctx, store.Capture{
		ID:       b.newID(),
		Platform: platformName,
		Identity: identity,
		Outcome:  outcome,
	})
	if err != nil {
		b.logger.Warn("broker: capture journal write failed", "error", err)
	}
}

func identityOf(d bridge.RegistrationDraft) string {
	if d.EmailAddress != "" {
		return d.EmailAddress
	}
	return d.LoginUsername
}

func normalizeSites(sites []string) []string {
	out := make([]string, 0, len(sites))
	seen := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
