// Package dashboard wires the session cell, remote client, collection syncer
// and mutation orchestrator into one dashboard.
//
// A Dashboard lives for the whole process. Each call to Open or Load starts a
// View: the lifetime of one rendered dashboard screen, with its own syncer and
// edit cursor. Logging out, or any authentication failure, ends the View.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/client"
	"rainfall-dashboard/internal/collection"
	"rainfall-dashboard/internal/export"
	"rainfall-dashboard/internal/metrics"
	"rainfall-dashboard/internal/mutation"
	"rainfall-dashboard/internal/notify"
	"rainfall-dashboard/internal/rainfall"
	"rainfall-dashboard/internal/session"
)

type Config struct {
	ServerURL  string
	HTTPClient *http.Client
	// SessionStore persists the credential between runs. Nil keeps it in memory.
	SessionStore session.Store
	Notifier     notify.Notifier
	Logger       *slog.Logger
	Registerer   prometheus.Registerer
	// Ticker replaces the polling clock, mainly for tests.
	Ticker collection.TickerFunc
}

type Dashboard struct {
	session  *session.Cell
	client   *client.Client
	notifier notify.Notifier
	logger   *slog.Logger
	ticker   collection.TickerFunc

	syncMetrics     *metrics.Sync
	mutationMetrics *metrics.Mutations

	loginRequired atomic.Bool

	mu      sync.Mutex
	current *View
}

// New builds a Dashboard and restores any persisted session.
func New(cfg Config) (*Dashboard, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Logger{Log: logger}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	cell := session.New(cfg.SessionStore)
	restored, err := cell.Restore()
	if err != nil {
		logger.Warn("could not restore session", "error", err)
	}
	remote, err := client.New(cfg.ServerURL, cell, httpClient)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		session:         cell,
		client:          remote,
		logger:          logger,
		ticker:          cfg.Ticker,
		syncMetrics:     metrics.NewSync(cfg.Registerer),
		mutationMetrics: metrics.NewMutations(cfg.Registerer),
	}
	d.notifier = notify.Func(func(n notify.Notification) {
		if n.Level == notify.LevelError && n.Code == apperrors.CodeAuthentication {
			d.requireLogin()
		}
		notifier.Notify(n)
	})
	if restored {
		logger.Debug("session restored")
	}
	return d, nil
}

// Session exposes the session cell for read access.
func (d *Dashboard) Session() *session.Cell {
	return d.session
}

// LoginRequired is set once an authentication failure has been observed and
// cleared by the next successful Login.
func (d *Dashboard) LoginRequired() bool {
	return d.loginRequired.Load()
}

// Login exchanges credentials for a session.
func (d *Dashboard) Login(ctx context.Context, username, password string) error {
	result, err := d.client.Login(ctx, username, password)
	if err != nil {
		d.notifier.Notify(notify.Failure(err, "Login failed"))
		return err
	}
	role, err := session.ParseRole(result.Role)
	if err != nil {
		err = apperrors.Wrap(apperrors.CodeAuthentication, "Login failed", err)
		d.notifier.Notify(notify.Failure(err, "Login failed"))
		return err
	}
	if err := d.session.Establish(result.Token, role); err != nil {
		d.notifier.Notify(notify.Failure(err, "Login failed"))
		return err
	}
	d.loginRequired.Store(false)
	d.logger.Info("logged in", "user", username, "role", role)
	d.notifier.Notify(notify.Success("Logged in"))
	return nil
}

// Register creates an account. It does not sign in.
func (d *Dashboard) Register(ctx context.Context, username, password string, role session.Role) error {
	if username == "" || password == "" {
		err := apperrors.New(apperrors.CodeValidation, "Username and password are required")
		d.notifier.Notify(notify.Failure(err, ""))
		return err
	}
	if _, err := session.ParseRole(string(role)); err != nil {
		err = apperrors.Wrap(apperrors.CodeValidation, "Role must be user or admin", err)
		d.notifier.Notify(notify.Failure(err, ""))
		return err
	}
	if err := d.client.Register(ctx, username, password, string(role)); err != nil {
		d.notifier.Notify(notify.Failure(err, "Registration failed"))
		return err
	}
	d.notifier.Notify(notify.Success("Registration successful"))
	return nil
}

// Logout ends the current view and wipes the credential.
func (d *Dashboard) Logout() error {
	d.Close()
	if err := d.session.Clear(); err != nil {
		return err
	}
	d.logger.Info("logged out")
	return nil
}

// Open starts a view that polls every interval until it is closed or ctx is
// done.
func (d *Dashboard) Open(ctx context.Context, interval time.Duration) (*View, error) {
	view, err := d.newView()
	if err != nil {
		return nil, err
	}
	if err := view.syncer.StartPolling(interval); err != nil {
		view.Close()
		return nil, err
	}
	context.AfterFunc(ctx, view.Close)
	return view, nil
}

// Load starts a view without polling and fills it with one fetch. Fetch
// failures are reported through the notifier; the view is still returned.
func (d *Dashboard) Load(ctx context.Context) (*View, error) {
	view, err := d.newView()
	if err != nil {
		return nil, err
	}
	err = view.syncer.FetchAll(ctx)
	if d.LoginRequired() || errors.Is(err, collection.ErrDiscarded) {
		view.Close()
		return nil, apperrors.New(apperrors.CodeAuthentication, "Please log in again")
	}
	return view, nil
}

// Close ends the current view, if any.
func (d *Dashboard) Close() {
	d.mu.Lock()
	view := d.current
	d.current = nil
	d.mu.Unlock()
	if view != nil {
		view.Close()
	}
}

// Export streams the server's CSV export into sink under the standard name
// and returns where it was stored.
func (d *Dashboard) Export(ctx context.Context, sink export.Sink) (string, error) {
	body, err := d.client.Export(ctx)
	if err != nil {
		d.notifier.Notify(notify.Failure(err, "Error exporting"))
		return "", err
	}
	defer body.Close()
	location, err := sink.Store(ctx, rainfall.ExportFilename, body)
	if err != nil {
		err = fmt.Errorf("store export: %w", err)
		d.notifier.Notify(notify.Failure(err, "Error exporting"))
		return "", err
	}
	d.notifier.Notify(notify.Success("Exported to " + location))
	return location, nil
}

func (d *Dashboard) newView() (*View, error) {
	if _, ok := d.session.CurrentRole(); !ok {
		d.loginRequired.Store(true)
		return nil, apperrors.New(apperrors.CodeAuthentication, "Please log in")
	}
	opts := []collection.Option{
		collection.WithLogger(d.logger),
		collection.WithNotifier(d.notifier),
		collection.WithMetrics(d.syncMetrics),
		collection.WithGuard(d.session),
	}
	if d.ticker != nil {
		opts = append(opts, collection.WithTicker(d.ticker))
	}
	syncer := collection.New(d.client, opts...)
	view := &View{
		syncer: syncer,
		mutations: mutation.New(d.client, syncer, d.session,
			mutation.WithLogger(d.logger),
			mutation.WithNotifier(d.notifier),
			mutation.WithMetrics(d.mutationMetrics),
		),
		session: d.session,
	}

	d.mu.Lock()
	previous := d.current
	d.current = view
	d.mu.Unlock()
	if previous != nil {
		previous.Close()
	}
	return view, nil
}

func (d *Dashboard) requireLogin() {
	if d.loginRequired.Swap(true) {
		return
	}
	d.logger.Warn("authentication failed, login required")
	// Closing from here runs on the goroutine that reported the failure,
	// which may be a sync cycle; StopPolling does not wait for cycles.
	d.Close()
}
