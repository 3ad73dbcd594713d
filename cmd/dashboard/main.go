// rainfall is the terminal client for the rainfall dashboard.
//
// Usage:
//
//	rainfall login --user NAME [--password PW]
//	rainfall register --user NAME [--password PW] [--role user|admin]
//	rainfall logout
//	rainfall show
//	rainfall watch [--interval 5s]
//	rainfall add --year 2024 --amount 812.4
//	rainfall edit --id 3 [--year 2024] [--amount 790]
//	rainfall delete --id 3 [--yes]
//	rainfall export [--out DIR]
//
// The password may also come from RAINFALL_PASSWORD. Exports go to an S3
// bucket when RAINFALL_EXPORT_S3_BUCKET is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/config"
	"rainfall-dashboard/internal/dashboard"
	"rainfall-dashboard/internal/notify"
	"rainfall-dashboard/internal/session"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"login", "sign in and store the session", runLogin},
	{"register", "create an account", runRegister},
	{"logout", "forget the stored session", runLogout},
	{"show", "print the dashboard once", runShow},
	{"watch", "keep the dashboard on screen, refreshing on an interval", runWatch},
	{"add", "add a yearly measurement (admin)", runAdd},
	{"edit", "change a measurement (admin)", runEdit},
	{"delete", "delete a measurement (admin)", runDelete},
	{"export", "download the CSV export", runExport},
}

type app struct {
	cfg     config.Dashboard
	dash    *dashboard.Dashboard
	notices *notify.Recorder
	logger  *slog.Logger
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, apperrors.ErrAuthentication) {
			fmt.Fprintln(os.Stderr, "run `rainfall login` to sign in")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage()
		return nil
	}
	var selected *command
	for i := range commands {
		if commands[i].name == args[0] {
			selected = &commands[i]
		}
	}
	if selected == nil {
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.LoadDashboard()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	notices := &notify.Recorder{}
	dash, err := dashboard.New(dashboard.Config{
		ServerURL:    cfg.ServerURL,
		HTTPClient:   &http.Client{Timeout: cfg.RequestTimeout},
		SessionStore: session.FileStore{Path: cfg.SessionFile},
		Notifier:     notices,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer dash.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return selected.run(ctx, &app{cfg: cfg, dash: dash, notices: notices, logger: logger}, args[1:])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: rainfall <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("rainfall "+name, pflag.ContinueOnError)
	flagSet.SortFlags = false
	return flagSet
}

func parseFlags(flagSet *pflag.FlagSet, args []string) (bool, error) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if flagSet.NArg() > 0 {
		return false, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	return true, nil
}
