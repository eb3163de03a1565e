package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/wayfinder/internal/app"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/geolocation"
	"github.com/ternarybob/wayfinder/internal/services/session"
)

var (
	searchLat      float64
	searchLng      float64
	searchCategory string
	searchRadius   int
	searchNoAI     bool
	searchTimeout  time.Duration
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a one-shot place search and print the result list as JSON",
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Float64Var(&searchLat, "lat", 0, "Latitude of the search origin")
	searchCmd.Flags().Float64Var(&searchLng, "lng", 0, "Longitude of the search origin")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Category: restaurants, hotels or parking (defaults to config)")
	searchCmd.Flags().IntVar(&searchRadius, "radius", 0, "Search radius in meters (defaults to config)")
	searchCmd.Flags().BoolVar(&searchNoAI, "no-ai", false, "Skip tourist trap classification")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", time.Minute, "Give up after this long")
	_ = searchCmd.MarkFlagRequired("lat")
	_ = searchCmd.MarkFlagRequired("lng")
}

func runSearch(cmd *cobra.Command, args []string) error {
	origin := models.Coordinates{Lat: searchLat, Lng: searchLng}
	if !origin.Valid() {
		return fmt.Errorf("invalid coordinates %s", origin.String())
	}
	if searchCategory != "" {
		category, err := models.ParseCategory(searchCategory)
		if err != nil {
			return err
		}
		config.Search.DefaultCategory = string(category)
	}
	if searchRadius > 0 {
		config.Search.DefaultRadiusM = searchRadius
	}
	if searchNoAI {
		config.Classification.Enabled = false
	}

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	s := session.New(common.NewSessionID(), config, application.Dependencies(geolocation.NewStatic(origin)), logger)
	defer s.Close()

	s.Mount()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), searchTimeout)
	defer cancel()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn().Dur("timeout", searchTimeout).Msg("Search did not settle, printing partial results")
	}

	snap := s.Snapshot()
	if snap.SearchError != nil {
		return fmt.Errorf("%s: %s", snap.SearchError.Code, snap.SearchError.Message)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
