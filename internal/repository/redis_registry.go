package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
)

const (
	registryEntriesKey    = "coincast:registry:entries"
	registryProductionKey = "coincast:registry:production"
	registrySeqKey        = "coincast:registry:seq"
)

// RedisRegistry implements Registry on shared Redis state so multiple
// instances can promote safely. Promote and Rollback run under WATCH on
// the production pointer; a concurrent change aborts the transaction and
// surfaces as a registry conflict instead of a silent double promotion.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Production(ctx context.Context) (*models.RegistryEntry, error) {
	ver, err := r.productionVersion(ctx, r.client)
	if err != nil {
		return nil, err
	}
	if ver == 0 {
		return nil, domrepo.ErrNoProduction
	}
	return r.entry(ctx, r.client, ver)
}

func (r *RedisRegistry) Promote(ctx context.Context, runID string, expectedVersion int64) (*models.RegistryEntry, error) {
	var promoted *models.RegistryEntry

	txn := func(tx *redis.Tx) error {
		curVer, err := r.productionVersion(ctx, tx)
		if err != nil {
			return err
		}
		if expectedVersion != curVer {
			return domrepo.ErrRegistryConflict
		}

		var current *models.RegistryEntry
		if curVer != 0 {
			if current, err = r.entry(ctx, tx, curVer); err != nil {
				return err
			}
		}

		seq, err := tx.Get(ctx, registrySeqKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read registry seq: %w", err)
		}
		newVer := seq + 1

		entry := &models.RegistryEntry{
			ModelVersion: newVer,
			RunID:        runID,
			Stage:        models.StageProduction,
			PromotedAt:   time.Now().UTC(),
			PrevID:       curVer,
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if current != nil {
				current.Stage = models.StageArchived
				if err := hsetEntry(ctx, pipe, current); err != nil {
					return err
				}
			}
			if err := hsetEntry(ctx, pipe, entry); err != nil {
				return err
			}
			pipe.Set(ctx, registrySeqKey, newVer, 0)
			pipe.Set(ctx, registryProductionKey, newVer, 0)
			return nil
		})
		if err != nil {
			return err
		}
		promoted = entry
		return nil
	}

	err := r.client.Watch(ctx, txn, registryProductionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, domrepo.ErrRegistryConflict
	}
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

func (r *RedisRegistry) Rollback(ctx context.Context) (*models.RegistryEntry, error) {
	var restored *models.RegistryEntry

	txn := func(tx *redis.Tx) error {
		curVer, err := r.productionVersion(ctx, tx)
		if err != nil {
			return err
		}
		if curVer == 0 {
			return domrepo.ErrNoProduction
		}
		current, err := r.entry(ctx, tx, curVer)
		if err != nil {
			return err
		}
		if current.PrevID == 0 {
			return domrepo.ErrNoRollback
		}
		prev, err := r.entry(ctx, tx, current.PrevID)
		if err != nil {
			if errors.Is(err, domrepo.ErrNotFound) {
				return domrepo.ErrNoRollback
			}
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			current.Stage = models.StageArchived
			prev.Stage = models.StageProduction
			if err := hsetEntry(ctx, pipe, current); err != nil {
				return err
			}
			if err := hsetEntry(ctx, pipe, prev); err != nil {
				return err
			}
			pipe.Set(ctx, registryProductionKey, prev.ModelVersion, 0)
			return nil
		})
		if err != nil {
			return err
		}
		restored = prev
		return nil
	}

	err := r.client.Watch(ctx, txn, registryProductionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, domrepo.ErrRegistryConflict
	}
	if err != nil {
		return nil, err
	}
	return restored, nil
}

func (r *RedisRegistry) History(ctx context.Context) ([]*models.RegistryEntry, error) {
	raw, err := r.client.HGetAll(ctx, registryEntriesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read registry entries: %w", err)
	}
	out := make([]*models.RegistryEntry, 0, len(raw))
	for _, data := range raw {
		var e models.RegistryEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decode registry entry: %w", err)
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelVersion > out[j].ModelVersion })
	return out, nil
}

// productionVersion reads the production pointer, 0 when unset.
func (r *RedisRegistry) productionVersion(ctx context.Context, c redis.Cmdable) (int64, error) {
	ver, err := c.Get(ctx, registryProductionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read production pointer: %w", err)
	}
	return ver, nil
}

func (r *RedisRegistry) entry(ctx context.Context, c redis.Cmdable, version int64) (*models.RegistryEntry, error) {
	data, err := c.HGet(ctx, registryEntriesKey, strconv.FormatInt(version, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registry entry %d: %w", version, domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read registry entry: %w", err)
	}
	var e models.RegistryEntry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("decode registry entry: %w", err)
	}
	return &e, nil
}

func hsetEntry(ctx context.Context, pipe redis.Pipeliner, e *models.RegistryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal registry entry: %w", err)
	}
	pipe.HSet(ctx, registryEntriesKey, strconv.FormatInt(e.ModelVersion, 10), data)
	return nil
}
