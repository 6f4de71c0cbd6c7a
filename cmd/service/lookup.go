package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/locstore"
	"github.com/kjstillabower/weather-dashboard/internal/lookup"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

type lookupFlags struct {
	lat, lng    string
	ip          string
	days        int
	stateFile   string
	ignoreSaved bool
	timeout     time.Duration
}

func lookupCommand() *cobra.Command {
	var f lookupFlags
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Print the current report and forecast for a location as JSON",
		Long: "Resolves a location from --lat/--lng, else the saved location, else IP geolocation, " +
			"else the configured default; prints the dashboard payloads and saves the location.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
			defer cancel()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stateFile := f.stateFile
			if stateFile == "" {
				stateFile = cfg.StateFile
			}
			runner := lookup.New(a.resolver, locstore.New(stateFile), a.service, logger)
			res, err := runner.Run(ctx, req)
			if err != nil {
				logger.Error("lookup failed", zap.Error(err))
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&f.lat, "lat", "", "latitude (requires --lng)")
	cmd.Flags().StringVar(&f.lng, "lng", "", "longitude (requires --lat)")
	cmd.Flags().StringVar(&f.ip, "ip", "", "locate this public IP instead of this machine's address")
	cmd.Flags().IntVar(&f.days, "days", lookup.DefaultDays, "forecast days (1-16)")
	cmd.Flags().StringVar(&f.stateFile, "state-file", "", "saved-location file (default from config)")
	cmd.Flags().BoolVar(&f.ignoreSaved, "ignore-saved", false, "skip the saved location")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "overall lookup timeout")
	return cmd
}

// request validates the flags. Coordinates must be given as a pair.
func (f lookupFlags) request() (lookup.Request, error) {
	req := lookup.Request{IP: f.ip, Days: f.days, IgnoreSaved: f.ignoreSaved}
	if f.days < 1 || f.days > 16 {
		return lookup.Request{}, fmt.Errorf("--days must be between 1 and 16, got %d", f.days)
	}
	switch {
	case f.lat == "" && f.lng == "":
		return req, nil
	case f.lat == "" || f.lng == "":
		return lookup.Request{}, fmt.Errorf("--lat and --lng must be given together")
	}
	c, err := validation.ParseCoordinates(f.lat, f.lng)
	if err != nil {
		return lookup.Request{}, fmt.Errorf("--lat/--lng: %w", err)
	}
	req.Coordinates = &models.Coordinates{Latitude: c.Latitude, Longitude: c.Longitude}
	return req, nil
}
