package cli

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/roach88/ground/internal/config"
	"github.com/roach88/ground/internal/ground"
	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/logger"
	"github.com/roach88/ground/internal/metrics"
	"github.com/roach88/ground/internal/storage"
	"github.com/roach88/ground/internal/storage/kvstore"
	"github.com/roach88/ground/internal/storage/sqlstore"
)

// session is an open store plus the logger and metrics registry it
// reports to.
type session struct {
	store    *ground.Store
	log      zerolog.Logger
	registry *prometheus.Registry
}

// openSession opens the configured backend. Logs go to logOut.
func openSession(cfg config.Config, logOut io.Writer) (*session, error) {
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: logOut,
	})

	var (
		adapter storage.Adapter
		err     error
	)
	switch cfg.Backend {
	case config.BackendBadger:
		adapter, err = kvstore.Open(cfg.Path)
	case config.BackendSQLite:
		adapter, err = sqlstore.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	var src ids.Source = adapter
	if cfg.IDFile != "" {
		src = ids.NewFileSource(cfg.IDFile)
	}

	reg := prometheus.NewRegistry()
	s := ground.New(adapter, ids.NewGenerator(src, cfg.IDBlockSize),
		ground.WithLogger(log),
		ground.WithMetrics(metrics.New(reg)),
	)
	log.Debug().
		Str("backend", string(cfg.Backend)).
		Str("path", cfg.Path).
		Msg("store opened")
	return &session{store: s, log: log, registry: reg}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}
