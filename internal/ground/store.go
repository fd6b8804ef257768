package ground

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/logger"
	"github.com/roach88/ground/internal/metrics"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/schema"
	"github.com/roach88/ground/internal/storage"
)

// Store is the versioning engine. Safe for concurrent use.
type Store struct {
	adapter   storage.Adapter
	ids       *ids.Generator
	validator *schema.Validator
	log       zerolog.Logger
	metrics   *metrics.Metrics
	locks     *keyedLocks[model.ID]
	keys      *keyedLocks[string]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = logger.Component(l, "ground") }
}

// WithMetrics sets the metrics sink. The default records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithValidator shares a schema validator (and its cache) between stores.
func WithValidator(v *schema.Validator) Option {
	return func(s *Store) { s.validator = v }
}

// New creates a Store over adapter. A nil gen leases ids from the
// adapter itself.
func New(adapter storage.Adapter, gen *ids.Generator, opts ...Option) *Store {
	if gen == nil {
		gen = ids.NewGenerator(adapter, ids.DefaultBlockSize)
	}
	s := &Store{
		adapter:   adapter,
		ids:       gen,
		validator: schema.New(),
		log:       logger.Nop(),
		locks:     newItemLocks(),
		keys:      newSourceKeyLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying adapter.
func (s *Store) Close() error {
	return s.adapter.Close()
}

// read runs fn in one transaction and commits it.
func (s *Store) read(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	return s.run(ctx, op, fn)
}

// write runs fn in one transaction while holding the locks of items.
func (s *Store) write(ctx context.Context, op string, items []model.ID, fn func(tx storage.Tx) error) error {
	return s.locks.execute(func() error {
		return s.run(ctx, op, fn)
	}, items...)
}

// run is the transaction boundary: begin, fn, commit. Any error from fn
// aborts, and the deferred Abort releases the transaction on every path.
func (s *Store) run(ctx context.Context, op string, fn func(tx storage.Tx) error) (err error) {
	start := time.Now()
	opID := newOperationID()
	log := s.log.With().Str("op", op).Str("op_id", opID).Logger()

	defer func() {
		elapsed := time.Since(start)
		s.metrics.RecordOperation(op, err, elapsed)
		switch {
		case err == nil:
			log.Debug().Dur("duration", elapsed).Msg("operation completed")
		case IsConsistency(err):
			log.Error().Err(err).Dur("duration", elapsed).Msg("operation failed")
		default:
			log.Warn().Err(err).Dur("duration", elapsed).Msg("operation failed")
		}
	}()

	tx, err := s.adapter.Begin(ctx)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Abort()

	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

// nextIDs issues n ids in space. Ids are issued before the operation's
// transaction opens; an aborted operation leaves a gap.
func (s *Store) nextIDs(ctx context.Context, space ids.Space, n int) ([]model.ID, error) {
	out := make([]model.ID, n)
	for i := range out {
		id, err := s.ids.Next(ctx, space)
		if err != nil {
			return nil, classify("issue "+space.String()+" id", err)
		}
		s.metrics.RecordID(space.String())
		out[i] = id
	}
	return out, nil
}

func (s *Store) nextID(ctx context.Context, space ids.Space) (model.ID, error) {
	out, err := s.nextIDs(ctx, space, 1)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func newOperationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
