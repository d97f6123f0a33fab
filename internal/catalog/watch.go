package catalog

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Watch reloads venues.yaml on change and calls onUpdate with the latest config.
// It performs an initial load before entering the watch loop; only errors of
// that first load and update are returned, later ones are logged.
func Watch(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*VenuesConfig) error) error {
	if path == "" {
		path = "configs/venues.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadVenuesConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		if err := onUpdate(cfg); err != nil {
			return err
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadVenuesConfig(path)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("venues config reload failed, keeping previous catalog")
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					if err := onUpdate(cfg); err != nil {
						logger.Error().Err(err).Msg("apply reloaded venues config")
						continue
					}
				}
				logger.Info().Int("venues", len(cfg.Venues)).Msg("venues config reloaded")
			}
		}
	}()

	return nil
}

// WatchInto keeps cat in sync with the venues file, rebuilding slots from
// the date returned by now on every reload.
func WatchInto(ctx context.Context, cat *Catalog, path string, interval time.Duration, now func() time.Time, logger *zerolog.Logger) error {
	return Watch(ctx, path, interval, logger, func(cfg *VenuesConfig) error {
		next, err := cfg.Build(now())
		if err != nil {
			return err
		}
		cat.Replace(next)
		return nil
	})
}
