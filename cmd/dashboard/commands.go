package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/collection"
	"rainfall-dashboard/internal/dashboard"
	"rainfall-dashboard/internal/export"
	"rainfall-dashboard/internal/mutation"
	"rainfall-dashboard/internal/notify"
	"rainfall-dashboard/internal/rainfall"
	"rainfall-dashboard/internal/session"
)

const clearScreen = "\x1b[H\x1b[2J"

func runLogin(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("login")
	user := flagSet.StringP("user", "u", "", "username")
	password := flagSet.StringP("password", "p", os.Getenv("RAINFALL_PASSWORD"), "password")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if err := a.dash.Login(ctx, *user, *password); err != nil {
		return err
	}
	role, _ := a.dash.Session().CurrentRole()
	fmt.Printf("Signed in as %s (%s)\n", *user, role)
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("register")
	user := flagSet.StringP("user", "u", "", "username")
	password := flagSet.StringP("password", "p", os.Getenv("RAINFALL_PASSWORD"), "password")
	role := flagSet.String("role", string(session.RoleUser), "user or admin")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if err := a.dash.Register(ctx, *user, *password, session.Role(strings.ToLower(*role))); err != nil {
		return err
	}
	fmt.Println("Registration successful. Run `rainfall login` to sign in.")
	return nil
}

func runLogout(_ context.Context, a *app, args []string) error {
	if ok, err := parseFlags(newFlagSet("logout"), args); !ok {
		return err
	}
	if err := a.dash.Logout(); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func runShow(ctx context.Context, a *app, args []string) error {
	if ok, err := parseFlags(newFlagSet("show"), args); !ok {
		return err
	}
	view, err := a.dash.Load(ctx)
	if err != nil {
		return err
	}
	return dashboardRender(view, a.notices.Errors())
}

func runWatch(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("watch")
	interval := flagSet.Duration("interval", a.cfg.PollInterval, "refresh interval")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	view, err := a.dash.Open(ctx, *interval)
	if err != nil {
		return err
	}
	defer view.Close()

	redraw := make(chan struct{}, 1)
	signalRedraw := func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	}
	view.Subscribe(func(collection.Snapshot) { signalRedraw() })

	seen := 0
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-redraw:
		case <-ticker.C:
			if len(a.notices.All()) == seen {
				continue
			}
		}
		if a.dash.LoginRequired() {
			return apperrors.New(apperrors.CodeAuthentication, "Session is no longer valid")
		}
		notices := a.notices.All()
		seen = len(notices)
		fmt.Print(clearScreen)
		if err := dashboardRender(view, lastNotices(notices, 5)); err != nil {
			return err
		}
	}
}

func runAdd(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("add")
	year := flagSet.String("year", "", "measurement year")
	amount := flagSet.String("amount", "", "rainfall in millimetres")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	view, err := a.dash.Load(ctx)
	if err != nil {
		return err
	}
	view.SetDraft(*year, *amount)
	if err := view.Save(ctx); err != nil {
		return err
	}
	return dashboardRender(view, a.notices.All())
}

func runEdit(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("edit")
	rawID := flagSet.String("id", "", "record id")
	year := flagSet.String("year", "", "new year (unchanged when empty)")
	amount := flagSet.String("amount", "", "new amount (unchanged when empty)")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	id, ok := rainfall.ParseRecordID(*rawID)
	if !ok {
		return fmt.Errorf("--id must be a positive integer")
	}
	view, err := a.dash.Load(ctx)
	if err != nil {
		return err
	}
	if !view.Edit(id) {
		return fmt.Errorf("record %s not found", id)
	}
	draft := view.Draft()
	if *year != "" {
		draft.Year = *year
	}
	if *amount != "" {
		draft.Amount = *amount
	}
	view.SetDraft(draft.Year, draft.Amount)
	if err := view.Save(ctx); err != nil {
		return err
	}
	return dashboardRender(view, a.notices.All())
}

func runDelete(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("delete")
	rawID := flagSet.String("id", "", "record id")
	yes := flagSet.BoolP("yes", "y", false, "skip the confirmation prompt")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	id, ok := rainfall.ParseRecordID(*rawID)
	if !ok {
		return fmt.Errorf("--id must be a positive integer")
	}
	view, err := a.dash.Load(ctx)
	if err != nil {
		return err
	}
	confirm := mutation.ConfirmFunc(promptYesNo)
	if *yes {
		confirm = func(string) bool { return true }
	}
	if err := view.Delete(ctx, id, confirm); err != nil {
		if errors.Is(err, mutation.ErrCancelled) {
			fmt.Println("Cancelled.")
			return nil
		}
		return err
	}
	return dashboardRender(view, a.notices.All())
}

func runExport(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("export")
	out := flagSet.String("out", a.cfg.ExportDir, "directory to write the CSV into")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	var sink export.Sink = export.FileSink{Dir: *out}
	if a.cfg.S3Bucket != "" && !flagSet.Changed("out") {
		s3Sink, err := export.NewS3Sink(ctx, export.S3Config{
			Bucket:    a.cfg.S3Bucket,
			Prefix:    a.cfg.S3Prefix,
			Region:    a.cfg.S3Region,
			Endpoint:  a.cfg.S3Endpoint,
			PathStyle: a.cfg.S3PathStyle,
		})
		if err != nil {
			return err
		}
		sink = s3Sink
	}
	location, err := a.dash.Export(ctx, sink)
	if err != nil {
		return err
	}
	fmt.Println("Saved", location)
	return nil
}

func promptYesNo(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func lastNotices(all []notify.Notification, n int) []notify.Notification {
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

func dashboardRender(view *dashboard.View, notices []notify.Notification) error {
	return dashboard.Render(os.Stdout, view.Screen(notices))
}
