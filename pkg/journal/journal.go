// Package journal keeps a local log of deployment attempts in BadgerDB.
// It is an audit trail only: nothing in the deployment path reads it back.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

const keyPrefix = "deploy/"

// Record is one deployment attempt.
type Record struct {
	ID          string            `json:"id"`
	RuntimeName string            `json:"runtimeName"`
	RuntimeID   types.RuntimeID   `json:"runtimeId,omitempty"`
	Environment types.Environment `json:"environment,omitempty"`
	Version     types.Version     `json:"version,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Artifact    string            `json:"artifact,omitempty"`
	FinalState  string            `json:"finalState"`
	FailedState string            `json:"failedState,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	FinishedAt  time.Time         `json:"finishedAt"`
}

// Succeeded reports whether the attempt reached DONE.
func (r *Record) Succeeded() bool {
	return r.FinalState == "DONE"
}

// Duration is the wall time of the attempt.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Key returns deploy/<runtime-name>/<started-unix-nano>. The timestamp is
// zero padded so keys of one runtime sort chronologically.
func Key(runtimeName string, startedAt time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, runtimeName, startedAt.UnixNano()))
}

// Store is a BadgerDB-backed journal.
type Store struct {
	db     *badger.DB
	path   string
	logger log.Logger
}

// Open opens or creates the journal at path.
func Open(path string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("journal")

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogAdapter{logger: logger}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	logger.Debug("journal opened", log.Str("path", path))
	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing journal", log.Str("path", s.path))
	return s.db.Close()
}

// Append stores rec. A missing ID is filled with a new uuid.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.RuntimeName == "" {
		return types.NewValidationError("journal record needs a runtime name")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize journal record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(Key(rec.RuntimeName, rec.StartedAt), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write journal record: %w", err)
	}
	return nil
}

// List returns records newest first. An empty runtimeName lists every
// runtime. A limit of zero or less returns everything.
func (s *Store) List(ctx context.Context, runtimeName string, limit int) ([]Record, error) {
	prefix := []byte(keyPrefix)
	if runtimeName != "" {
		prefix = []byte(keyPrefix + runtimeName + "/")
	}

	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to read journal record %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	records, err := s.List(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("journal record %s: %w", id, types.ErrNotFound)
}

// Prune keeps the newest keep records of runtimeName and deletes the rest.
// It returns how many were deleted.
func (s *Store) Prune(ctx context.Context, runtimeName string, keep int) (int, error) {
	if runtimeName == "" {
		return 0, errors.New("prune needs a runtime name")
	}
	records, err := s.List(ctx, runtimeName, 0)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(records) <= keep {
		return 0, nil
	}
	stale := records[keep:]
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range stale {
			if err := txn.Delete(Key(rec.RuntimeName, rec.StartedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return len(stale), nil
}

// badgerLogAdapter routes BadgerDB's own logging through our logger.
type badgerLogAdapter struct {
	logger log.Logger
}

func (l *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("badger: "+format, args...)
}

func (l *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("badger: "+format, args...)
}

func (l *badgerLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debugf("badger: "+format, args...)
}

func (l *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debugf("badger: "+format, args...)
}
