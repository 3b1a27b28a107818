package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beekhof/calendar-notify/internal/auth"
	"github.com/beekhof/calendar-notify/internal/calendar"
	"github.com/beekhof/calendar-notify/internal/config"
	"github.com/beekhof/calendar-notify/internal/notify"
	"github.com/beekhof/calendar-notify/internal/runner"
	syncengine "github.com/beekhof/calendar-notify/internal/sync"
)

func printHelp() {
	fmt.Fprintf(os.Stderr, `Calendar Notify

Watches an Outlook calendar through Microsoft Graph and fires popup
reminders inside your terminal multiplexer (Zellij or tmux) before each
upcoming event.

USAGE:
    %s [OPTIONS]

OPTIONS:
    -h, --help              Show this help message and exit
    --config FILE           Path to JSON config file
    --client-id ID          Azure app registration client ID
                            (overrides config file and CALNOTIFY_CLIENT_ID env var)
    --token-path PATH       Path to store the OAuth token
                            (overrides config file and CALNOTIFY_TOKEN_PATH env var)
    --multiplexer NAME      "zellij" (default) or "tmux"
                            (overrides config file and CALNOTIFY_MULTIPLEXER env var)
    --once                  Run a single sync and exit
    --export PATH           After syncing, write the cached agenda as an
                            iCalendar (.ics) file to PATH and exit

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (CALNOTIFY_CLIENT_ID, CALNOTIFY_TENANT,
       CALNOTIFY_GRAPH_BASE_URL, CALNOTIFY_TOKEN_PATH, CALNOTIFY_MULTIPLEXER,
       CALNOTIFY_REFRESH_PERIOD_SECONDS, CALNOTIFY_TICK_PERIOD_SECONDS,
       CALNOTIFY_NOTIFICATION_LEAD_MINUTES, CALNOTIFY_RETENTION_MINUTES,
       CALNOTIFY_LIMIT_DAYS, CALNOTIFY_AUTH_TIMEOUT_SECONDS)
    3. Config file (--config)
    4. Defaults

CONFIG FILE:
    Example:
    {
      "client_id": "00000000-0000-0000-0000-000000000000",
      "tenant": "common",
      "token_path": "/home/me/.config/calnotify/token.json",
      "refresh_period_seconds": 300,
      "tick_period_seconds": 30,
      "notification_lead_minutes": 10,
      "retention_minutes": 60,
      "limit_days": 7,
      "multiplexer": "zellij"
    }

DESCRIPTION:
    On first run the tool walks you through a browser sign-in against the
    Microsoft identity platform and stores the resulting token at
    token_path (mode 0600). Afterwards it polls the Graph calendarView
    delta endpoint every refresh_period_seconds, keeps an in-memory cache
    of the next limit_days days of events, and pops up a reminder
    notification_lead_minutes before each event starts.

    If the refresh token is revoked you will be asked to sign in again on
    the next start; cached events are kept until then.
`, os.Args[0])
}

func run() error {
	var (
		configFile  = flag.String("config", "", "path to JSON config file")
		clientID    = flag.String("client-id", "", "Azure app registration client ID")
		tokenPath   = flag.String("token-path", "", "path to store the OAuth token")
		multiplexer = flag.String("multiplexer", "", "zellij or tmux")
		once        = flag.Bool("once", false, "run a single sync and exit")
		exportPath  = flag.String("export", "", "write the synced agenda as .ics to this path and exit")
		help        = flag.Bool("help", false, "show help")
	)
	flag.BoolVar(help, "h", false, "show help")
	flag.Usage = printHelp
	flag.Parse()

	if *help {
		printHelp()
		return nil
	}

	cfg, err := config.LoadConfig(*configFile, *clientID, *tokenPath, *multiplexer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oauthConfig := auth.NewOAuthConfig(cfg.ClientID, cfg.Tenant)
	graph := calendar.NewGraphClient(oauthConfig, cfg.GraphBaseURL, cfg.LimitDays)

	vault, err := auth.NewVault(graph, auth.NewFileStore(cfg.TokenPath), auth.DefaultMargin)
	if err != nil {
		return err
	}

	if !vault.Authenticated() {
		token, err := auth.Consent(ctx, oauthConfig, cfg.AuthTimeout())
		if err != nil {
			return fmt.Errorf("sign-in failed: %w", err)
		}
		if err := vault.SetToken(token); err != nil {
			return err
		}
	}

	store := calendar.NewStore(cfg.Retention())

	bridge, err := notify.NewBridge(cfg.Multiplexer)
	if err != nil {
		return err
	}
	scheduler := notify.NewScheduler(bridge, cfg.LeadTime())

	engine := syncengine.NewEngine(vault, graph, store, scheduler)

	if *once || *exportPath != "" {
		if err := engine.SyncOnce(ctx); err != nil {
			return err
		}
		events := store.Snapshot()
		log.Printf("Synced %d event(s)", len(events))
		if *exportPath != "" {
			f, err := os.Create(*exportPath)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			if err := calendar.WriteICS(f, events); err != nil {
				return err
			}
			log.Printf("Wrote %s", *exportPath)
		}
		return nil
	}

	r := runner.New(engine, scheduler, cfg.PollInterval(), cfg.TickInterval())

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Println("Shutting down...")
	}

	// Let in-flight work finish before exiting.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("Warning: shutdown timed out with jobs still running")
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
