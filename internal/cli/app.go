package cli

import (
	"fmt"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/config"
	"github.com/raphaelgruber/docwatch/internal/engine"
	"github.com/raphaelgruber/docwatch/internal/metrics"
)

// newAPIClient builds an ingestion API client from the loaded config.
func newAPIClient() (*client.Client, error) {
	c, err := client.New(cfg.ServerURL,
		client.WithToken(cfg.APIToken),
		client.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	return c, nil
}

// newEngine wires an engine to the ingestion API. Callers must Close it.
func newEngine() (*engine.Engine, *metrics.Collector, error) {
	api, err := newAPIClient()
	if err != nil {
		return nil, nil, err
	}

	col := metrics.NewCollector()
	eng, err := engine.New(engine.Options{
		API: api,
		Owners: engine.StaticOwners{
			Selected: cfg.DefaultOwner,
			Known:    cfg.KnownOwners,
		},
		AsyncEnabled:       config.AsyncUploadEnabled,
		Metrics:            col,
		Logger:             logger,
		ForegroundInterval: cfg.PollInterval,
		BackgroundInterval: cfg.PollBackgroundInterval,
		MaxBackoff:         cfg.PollMaxBackoff,
		PollRateLimit:      cfg.PollRateLimit,
		MaxPollFailures:    cfg.PollMaxFailures,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}
	return eng, col, nil
}
