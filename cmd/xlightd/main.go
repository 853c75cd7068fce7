// Command xlightd runs the lighting rule controller: rules bind schedules to
// alarms, and fired alarms apply scenarios to the lamp and notify over MQTT.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/app"
	"github.com/dokzlo13/xlightd/internal/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	resetState := flag.Bool("reset-state", false, "Drop persisted rules, schedules and scenarios on startup")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	log.Info().
		Str("config", configPath).
		Str("database", cfg.Database.Path).
		Str("timezone", cfg.Controller.Timezone).
		Bool("api", cfg.API.IsEnabled()).
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("hue", cfg.Hue.Enabled).
		Msg("Starting xlightd")

	daemon, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Tables must be cleared before Start loads them.
	if *resetState {
		log.Warn().Msg("Dropping persisted tables (--reset-state)")
		if err := daemon.ClearState(); err != nil {
			log.Error().Err(err).Msg("Failed to drop persisted tables")
		}
	}

	if err := daemon.Start(app.SignalContext()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start xlightd")
	}
	daemon.Wait()

	if err := daemon.Stop(); err != nil {
		log.Error().Err(err).Msg("Unclean shutdown")
		os.Exit(1)
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
