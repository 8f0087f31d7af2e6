// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/api"
	"github.com/xkatng/twitch-song-requests/internal/app/chat"
	"github.com/xkatng/twitch-song-requests/internal/app/filter"
	"github.com/xkatng/twitch-song-requests/internal/app/playback"
	"github.com/xkatng/twitch-song-requests/internal/app/session"
	"github.com/xkatng/twitch-song-requests/internal/infra/config"
	"github.com/xkatng/twitch-song-requests/internal/infra/logger"
	"github.com/xkatng/twitch-song-requests/internal/infra/sessionlog"
	"github.com/xkatng/twitch-song-requests/internal/infra/spotify"
	"github.com/xkatng/twitch-song-requests/internal/infra/twitch"
)

var (
	app        = kingpin.New("songrequest-server", "Twitch song request server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available request filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		File:   "",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	// Validate filter config
	if err := validateFilterConfig(cfg); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create Spotify client
	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	// Build the admission chain from config
	chain, err := buildFilterChain(cfg)
	if err != nil {
		return fmt.Errorf("failed to build filter chain: %w", err)
	}

	// Create playback controller
	controller := playback.NewController(playback.Config{
		PollInterval:       time.Duration(cfg.Playback.PollIntervalMs) * time.Millisecond,
		CommandAttempts:    cfg.Playback.CommandAttempts,
		CommandRetryDelay:  time.Duration(cfg.Playback.CommandRetryDelayMs) * time.Millisecond,
		TransitionDeadline: time.Duration(cfg.Playback.TransitionDeadlineMs) * time.Millisecond,
		FailureBackoff:     time.Duration(cfg.Playback.FailureBackoffMs) * time.Millisecond,
		Settings: playback.Settings{
			MaxQueueSize:    cfg.Requests.MaxQueueSize,
			CooldownSeconds: cfg.Requests.CooldownSeconds,
			SkipThreshold:   cfg.Requests.SkipThreshold,
		},
	}, chain, spotifyClient)
	seedBlocklist(controller, cfg.Blocklist)

	// Session history log
	var history *sessionlog.Logger
	if cfg.SessionLog.IsEnabled() {
		history = sessionlog.New(cfg.SessionLog.Dir)
	}

	// Create session manager
	manager := session.NewManager(cfg, controller, spotifyClient, history)
	manager.Start()

	// Connect to Twitch chat. The router needs the client to reply and
	// the client needs the router to dispatch, hence the indirection.
	var router *chat.Router
	twitchClient := twitch.New(twitch.Config{
		Channel: cfg.Twitch.Channel,
		Nick:    cfg.Twitch.Nick,
		Token:   cfg.Twitch.Token,
	}, func(ctx context.Context, msg twitch.ChatMessage) {
		router.Handle(ctx, msg)
	})
	router = chat.NewRouter(chat.Config{
		RewardID:     cfg.Twitch.RewardID,
		RewardTitles: cfg.Twitch.RewardTitles,
	}, manager, twitchClient)

	go func() {
		if err := twitchClient.Run(ctx); err != nil && ctx.Err() == nil {
			zlog.Error().Msgf("Twitch chat connection ended: %v", err)
		}
	}()

	// Start dashboard API server
	apiServer := api.NewServer(cfg.Server, manager)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		manager.Close()
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Close the session first to terminate overlay streams
	cancel()
	manager.Close()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// buildFilterChain assembles the admission chain, honoring per-filter
// enable flags from config. Order is fixed so reject codes stay stable.
func buildFilterChain(cfg *config.Config) (*filter.Chain, error) {
	cooldown := filter.NewRequestCooldownFilter()
	if err := cooldown.ValidateConfig(cfg.FilterSettings(cooldown.Name())); err != nil {
		return nil, err
	}

	chain := filter.NewChain()
	for _, f := range []filter.Filter{
		filter.NewQueueCapacityFilter(),
		filter.NewDuplicateTrackFilter(),
		filter.NewBlockedTrackFilter(),
		cooldown,
	} {
		if cfg.IsFilterEnabled(f.Name()) {
			chain.Add(f)
		}
	}
	return chain, nil
}

// seedBlocklist loads the configured blocklist into the controller.
func seedBlocklist(controller *playback.Controller, bl config.BlocklistConfig) {
	for _, artist := range bl.Artists {
		controller.BlockArtist(artist)
	}
	for _, id := range bl.TrackIDs {
		controller.BlockTrack(spotify.NormalizeTrackID(id))
	}
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, factory := range filter.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if filterCfg.Enabled != nil && !*filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			continue
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return fmt.Errorf("filter %s: %w", filterName, err)
		}
	}

	return nil
}
