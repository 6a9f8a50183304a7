package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/batch"
	"github.com/rescale/docbatch/internal/config"
	"github.com/rescale/docbatch/internal/events"
	"github.com/rescale/docbatch/internal/http"
	"github.com/rescale/docbatch/internal/logging"
	"github.com/rescale/docbatch/internal/objectstore"
	"github.com/rescale/docbatch/internal/progress"
	"github.com/rescale/docbatch/internal/state"
)

// loadConfig reads the config file and overlays flags and the resolved token.
// Priority for the token: --token > token file > config file > environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	cfg.MergeFlags(apiBaseURL, "")
	cfg.Token = config.ResolveToken(apiToken, "", cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if http.NeedsProxyPassword(cfg) {
		pw, err := promptSecret(bufio.NewReader(os.Stdin), os.Stderr, fmt.Sprintf("Proxy password for %s", cfg.ProxyUser))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = pw
	}
	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
// A missing token is an error here; commands that can run without one
// load the config themselves.
func getAPIClient() (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Token == "" {
		return nil, nil, fmt.Errorf("not logged in: run 'docbatch login' or pass --token (or set %s)", config.TokenEnvVar)
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, cfg, nil
}

// logoutHandler clears the stored credentials when the backend rejects them.
type logoutHandler struct {
	log *logging.Logger
}

// ForceLogout implements batch.Authenticator.
func (h logoutHandler) ForceLogout() {
	if err := config.ClearToken("", cfgFile); err != nil {
		h.log.Warn().Err(err).Msg("failed to clear stored token")
	}
	fmt.Fprintln(os.Stderr, "Session rejected by the server; stored token cleared. Run 'docbatch login' to sign in again.")
}

// session is everything one batch command needs: client, object listing,
// selection state and an engine rendering to the terminal and any
// configured feeds.
type session struct {
	cfg      *config.Config
	client   *api.Client
	bus      *events.EventBus
	state    *state.ObjectListState
	reloader *objectstore.Reloader
	engine   *batch.Engine
	log      *logging.Logger

	feed   *progress.JSONFeed
	bridge *progress.WSBridge
}

// newSession wires a session from the global flags. Call close when done.
func newSession(ctx context.Context) (*session, error) {
	client, cfg, err := getAPIClient()
	if err != nil {
		return nil, err
	}
	log := GetLogger()

	lister, err := objectstore.New(ctx, cfg, client, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure object listing: %w", err)
	}

	s := &session{
		cfg:    cfg,
		client: client,
		bus:    events.NewEventBus(0),
		log:    log,
	}
	s.state = state.NewObjectListState(s.bus)
	s.reloader = objectstore.NewReloader(lister, s.state, "", log)

	// With --json, stdout carries the feed and human output stays on stderr.
	overlay := progress.NewOverlay(os.Stderr)
	panel := progress.NewPanel(os.Stderr)
	busSurface := progress.NewBusSurface(s.bus)
	notifier := progress.NotifierTee{progress.NewTerminalNotifier(os.Stderr), progress.NewBusNotifier(s.bus)}

	if jsonOutput {
		s.feed = progress.NewJSONFeed(s.bus, os.Stdout)
	}
	if wsListen != "" {
		s.bridge = progress.NewWSBridge(s.bus, log)
		s.bridge.Start()
		addr, err := s.bridge.ListenAndServe(wsListen)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to start websocket bridge on %s: %w", wsListen, err)
		}
		fmt.Fprintf(os.Stderr, "Streaming progress on ws://%s/ws\n", addr)
	}

	auth := logoutHandler{log: log}
	s.engine = batch.NewEngine(batch.Deps{
		Overlay:     progress.Tee{overlay, busSurface},
		Panel:       progress.Tee{panel, busSurface},
		Notifier:    notifier,
		Reloader:    s.reloader,
		Selection:   s.state,
		Processing:  s.state,
		Auth:        auth,
		Jobs:        batch.NewJobControl(client, auth),
		SettleDelay: cfg.SettleDelay,
		Logger:      log,
	})
	return s, nil
}

// load fetches the object listing into the session state.
func (s *session) load(ctx context.Context) error {
	if err := s.reloader.Reload(ctx); err != nil {
		if api.IsUnauthorized(err) {
			logoutHandler{log: s.log}.ForceLogout()
		}
		return fmt.Errorf("failed to list objects: %w", err)
	}
	return nil
}

func (s *session) close() {
	if s.bridge != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		if err := s.bridge.Close(ctx); err != nil {
			s.log.Debug().Err(err).Msg("websocket bridge shutdown")
		}
		cancel()
	}
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			s.log.Warn().Err(err).Msg("json feed write failed")
		}
	}
	s.bus.Close()
}
