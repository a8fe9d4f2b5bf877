package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/landing-tracker/pkg/logger"
)

// WaitWritable probes the store with a throwaway write and delete. While another
// writer holds the lock it sleeps the backoff and probes again. It only returns
// an error for non-busy failures or when ctx is done.
func (s *Store) WaitWritable(ctx context.Context) error {
	attempts := 0
	for {
		err := s.probe(ctx)
		if err == nil {
			if attempts > 0 {
				s.logger.Debug("Store writable again", logger.Int("attempts", attempts))
			}
			return nil
		}
		if !s.dialect.isBusy(err) {
			return fmt.Errorf("failed to probe store: %w", err)
		}

		attempts++
		s.logger.Debug("Store busy, backing off",
			logger.Int("attempts", attempts),
			logger.Duration("backoff", s.busyBackoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.busyBackoff):
		}
	}
}

func (s *Store) probe(ctx context.Context) error {
	_, err := s.exec(ctx, `
		INSERT INTO store_probe (owner, probed_at) VALUES (?, ?)
		ON CONFLICT (owner) DO UPDATE SET probed_at = excluded.probed_at`,
		s.owner, time.Now().Unix())
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `DELETE FROM store_probe WHERE owner = ?`, s.owner)
	return err
}
