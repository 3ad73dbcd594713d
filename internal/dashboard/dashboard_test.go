package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/auth"
	"rainfall-dashboard/internal/export"
	"rainfall-dashboard/internal/httpapi"
	"rainfall-dashboard/internal/mutation"
	"rainfall-dashboard/internal/notify"
	"rainfall-dashboard/internal/rainfall"
	"rainfall-dashboard/internal/session"
	"rainfall-dashboard/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Init(t.Context()); err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	tokens, err := auth.NewManager(auth.Config{Secret: strings.Repeat("d", 32), TTL: time.Hour})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	server := httptest.NewServer(httpapi.NewServer(store, tokens, httpapi.Options{AllowAdminRegistration: true}).Handler())
	t.Cleanup(server.Close)
	return server
}

type harness struct {
	dash    *Dashboard
	store   *session.MemoryStore
	notices *notify.Recorder
}

func newHarness(t *testing.T, serverURL string, store *session.MemoryStore) *harness {
	t.Helper()
	if store == nil {
		store = &session.MemoryStore{}
	}
	notices := &notify.Recorder{}
	dash, err := New(Config{
		ServerURL:    serverURL,
		SessionStore: store,
		Notifier:     notices,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ticker:       idleTicker,
	})
	if err != nil {
		t.Fatalf("new dashboard: %v", err)
	}
	t.Cleanup(dash.Close)
	return &harness{dash: dash, store: store, notices: notices}
}

// idleTicker never fires, so only the initial fetch of Open runs.
func idleTicker(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

func (h *harness) signIn(t *testing.T, username string, role session.Role) {
	t.Helper()
	ctx := context.Background()
	if err := h.dash.Register(ctx, username, "pw-"+username, role); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	if err := h.dash.Login(ctx, username, "pw-"+username); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
}

func TestLoginEstablishesSession(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)

	h.signIn(t, "boss", session.RoleAdmin)

	role, ok := h.dash.Session().CurrentRole()
	if !ok || role != session.RoleAdmin {
		t.Fatalf("role: got %q %v", role, ok)
	}
	stored, ok, err := h.store.Load()
	if err != nil || !ok {
		t.Fatalf("stored session: ok=%v err=%v", ok, err)
	}
	if stored.Token == "" || stored.Role != session.RoleAdmin {
		t.Fatalf("stored: %+v", stored)
	}
	if h.dash.LoginRequired() {
		t.Fatalf("login should not be required after login")
	}
}

func TestLoginWithBadPasswordRequiresLogin(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	if err := h.dash.Register(context.Background(), "viewer", "right", session.RoleUser); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := h.dash.Login(context.Background(), "viewer", "wrong")
	if !errors.Is(err, apperrors.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if _, ok := h.dash.Session().CurrentRole(); ok {
		t.Fatalf("no session expected")
	}
	errs := h.notices.Errors()
	if len(errs) != 1 || errs[0].Message != "Invalid credentials" {
		t.Fatalf("notifications: %+v", errs)
	}
}

func TestRegisterSurfacesServerMessage(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	ctx := context.Background()
	if err := h.dash.Register(ctx, "viewer", "pw", session.RoleUser); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := h.dash.Register(ctx, "viewer", "pw", session.RoleUser)
	if !errors.Is(err, apperrors.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	errs := h.notices.Errors()
	if len(errs) != 1 || errs[0].Message != "Username already exists" {
		t.Fatalf("notifications: %+v", errs)
	}
}

func TestOpenRequiresSession(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)

	_, err := h.dash.Open(context.Background(), time.Second)
	if !errors.Is(err, apperrors.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if !h.dash.LoginRequired() {
		t.Fatalf("login should be required")
	}
}

func TestAdminWriteFlow(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	h.signIn(t, "boss", session.RoleAdmin)
	ctx := context.Background()

	view, err := h.dash.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !view.CanWrite() {
		t.Fatalf("admin should be able to write")
	}

	view.SetDraft("2020", "1200")
	if err := view.Save(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	snapshot := view.Snapshot()
	if len(snapshot.Records) != 1 || snapshot.Records[0].Year != 2020 {
		t.Fatalf("records after create: %+v", snapshot.Records)
	}
	if snapshot.Analytics.Total != 1200 {
		t.Fatalf("analytics after create: %+v", snapshot.Analytics)
	}
	if view.Draft() != (mutation.Draft{}) {
		t.Fatalf("draft should reset, got %+v", view.Draft())
	}

	id := snapshot.Records[0].ID
	if !view.Edit(id) {
		t.Fatalf("edit should find record %s", id)
	}
	view.SetDraft("2020", "900")
	if err := view.Save(ctx); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := view.Snapshot().Records[0].Amount; got != 900 {
		t.Fatalf("amount after update: %v", got)
	}

	if err := view.Delete(ctx, id, mutation.ConfirmFunc(func(string) bool { return false })); !errors.Is(err, mutation.ErrCancelled) {
		t.Fatalf("expected cancel, got %v", err)
	}
	if err := view.Delete(ctx, id, mutation.ConfirmFunc(func(string) bool { return true })); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := len(view.Snapshot().Records); n != 0 {
		t.Fatalf("records after delete: %d", n)
	}
	if view.Snapshot().Analytics != (rainfall.Summary{}) {
		t.Fatalf("analytics after delete: %+v", view.Snapshot().Analytics)
	}
}

func TestDuplicateYearIsSurfacedVerbatim(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	h.signIn(t, "boss", session.RoleAdmin)
	ctx := context.Background()

	view, err := h.dash.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	view.SetDraft("2020", "1")
	if err := view.Save(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	view.SetDraft("2020", "2")
	if err := view.Save(ctx); !errors.Is(err, apperrors.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	errs := h.notices.Errors()
	if len(errs) != 1 || errs[0].Message != "Year already exists" {
		t.Fatalf("notifications: %+v", errs)
	}
	if view.Draft().Year != "2020" || view.Draft().Amount != "2" {
		t.Fatalf("draft should survive a rejected save, got %+v", view.Draft())
	}
}

func TestUserCannotWrite(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	h.signIn(t, "viewer", session.RoleUser)
	ctx := context.Background()

	view, err := h.dash.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if view.CanWrite() {
		t.Fatalf("user should not be able to write")
	}
	view.SetDraft("2020", "1")
	if err := view.Save(ctx); !errors.Is(err, apperrors.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if h.dash.LoginRequired() {
		t.Fatalf("authorization failure must not require login")
	}
}

func TestRejectedTokenRequiresLogin(t *testing.T) {
	server := newTestServer(t)
	store := &session.MemoryStore{}
	if err := store.Save(session.Session{Token: "stale-token", Role: session.RoleAdmin}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	h := newHarness(t, server.URL, store)
	if _, ok := h.dash.Session().CurrentRole(); !ok {
		t.Fatalf("session should be restored")
	}

	_, err := h.dash.Load(context.Background())
	if !errors.Is(err, apperrors.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if !h.dash.LoginRequired() {
		t.Fatalf("login should be required")
	}
	if errs := h.notices.Errors(); len(errs) != 1 {
		t.Fatalf("expected one notification, got %+v", errs)
	}
}

func TestOpenPollsAndLogoutStops(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	h.signIn(t, "boss", session.RoleAdmin)

	seed, err := h.dash.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	seed.SetDraft("2019", "5")
	if err := seed.Save(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	view, err := h.dash.Open(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(view.Snapshot().Records) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("initial fetch did not land")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.dash.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := h.dash.Session().CurrentRole(); ok {
		t.Fatalf("session should be cleared")
	}
	if _, ok, _ := h.store.Load(); ok {
		t.Fatalf("stored session should be cleared")
	}
	if err := view.Refresh(context.Background()); err == nil {
		t.Fatalf("refresh after logout should not apply")
	}
}

func TestOpenStopsWhenContextEnds(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	h.signIn(t, "viewer", session.RoleUser)

	ctx, cancel := context.WithCancel(context.Background())
	view, err := h.dash.Open(ctx, time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := view.Refresh(context.Background()); err != nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("view still applying results after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExportToFileSink(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	h.signIn(t, "boss", session.RoleAdmin)
	ctx := context.Background()

	view, err := h.dash.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	view.SetDraft("2021", "42.5")
	if err := view.Save(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}

	dir := t.TempDir()
	location, err := h.dash.Export(ctx, export.FileSink{Dir: dir})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if location != filepath.Join(dir, rainfall.ExportFilename) {
		t.Fatalf("location: %s", location)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "Year,Amount\n2021,42.5\n" {
		t.Fatalf("export content: %q", data)
	}
}

func TestRender(t *testing.T) {
	server := newTestServer(t)
	h := newHarness(t, server.URL, nil)
	h.signIn(t, "boss", session.RoleAdmin)
	ctx := context.Background()

	view, err := h.dash.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	view.SetDraft("2018", "640")
	if err := view.Save(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}

	var out bytes.Buffer
	if err := Render(&out, view.Screen(h.notices.All())); err != nil {
		t.Fatalf("render: %v", err)
	}
	text := out.String()
	for _, want := range []string{"ADMIN", "2018", "640.00", "Data added"} {
		if !strings.Contains(text, want) {
			t.Fatalf("render output missing %q:\n%s", want, text)
		}
	}
}
