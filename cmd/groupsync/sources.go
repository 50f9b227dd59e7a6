package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/k-negishi/group-calendar-sync/internal/config"
	"github.com/k-negishi/group-calendar-sync/internal/gateway"
	"github.com/k-negishi/group-calendar-sync/internal/usecase"
)

// buildBusySources BUSY_SOURCES_FILE の予定ソースを組み立てる
func buildBusySources(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]usecase.BusySource, error) {
	specs, err := config.LoadBusySources(cfg.BusySourcesFile)
	if err != nil {
		return nil, err
	}

	var provider gateway.FreeBusyProvider
	sources := make([]usecase.BusySource, 0, len(specs))
	for _, spec := range specs {
		if spec.ICSURL != "" {
			sources = append(sources, gateway.NewICSBusySource(spec.ICSURL, logger))
			continue
		}

		if provider == nil {
			if cfg.GoogleCredentials == "" {
				return nil, fmt.Errorf("予定ソース %s にはGOOGLE_CREDENTIALSが必要です", spec.Name)
			}
			if _, err := cfg.GetGoogleCredentialsJSON(); err != nil {
				return nil, err
			}
			provider, err = gateway.NewGoogleFreeBusyProvider(ctx, []byte(cfg.GoogleCredentials))
			if err != nil {
				return nil, err
			}
		}
		sources = append(sources, gateway.NewGoogleFreeBusySource(provider, spec.GoogleCalendarID))
	}

	logger.Debug("予定ソースを読み込みました", "count", len(sources))
	return sources, nil
}
