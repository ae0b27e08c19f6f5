package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"fleet-monitor/tracker/internal/config"
	"fleet-monitor/tracker/internal/domain"
)

const (
	vehicleKeyPrefix = "vehicle:"
	registryKey      = "vehicle:keys"
)

// Hash fields of a vehicle state entry.
const (
	FieldLat       = "lat"
	FieldLon       = "lon"
	FieldSpeed     = "speed"
	FieldTimestamp = "timestamp"
	FieldStatus    = "status"
	FieldLoad      = "load"
)

func VehicleKey(vehicleID string) string {
	return vehicleKeyPrefix + vehicleID
}

// RedisStore is the hot cache: one hash per vehicle plus the registry set of
// every vehicle key that has been written.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to redis: %w", domain.ErrStoreUnavailable, err)
	}

	return &RedisStore{client: client}, nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetVehicleState upserts the given fields and registers the vehicle key in a
// single MULTI/EXEC. Fields not named are left untouched.
func (r *RedisStore) SetVehicleState(ctx context.Context, vehicleID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	key := VehicleKey(vehicleID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, registryKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: state update for %s: %w", domain.ErrStoreUnavailable, vehicleID, err)
	}
	return nil
}

// GetVehicleState returns the stored state. An unknown vehicle yields a state
// with nil location fields rather than an error.
func (r *RedisStore) GetVehicleState(ctx context.Context, vehicleID string) (domain.VehicleState, error) {
	data, err := r.client.HGetAll(ctx, VehicleKey(vehicleID)).Result()
	if err != nil {
		return domain.VehicleState{}, fmt.Errorf("%w: get state for %s: %w", domain.ErrStoreUnavailable, vehicleID, err)
	}
	return stateFromHash(vehicleID, data), nil
}

func (r *RedisStore) ListKnownVehicleIDs(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, registryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read registry: %w", domain.ErrStoreUnavailable, err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if id, ok := strings.CutPrefix(m, vehicleKeyPrefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAllCurrentStatuses fetches every registered vehicle's state in one
// pipeline, ordered by vehicle id. Registered ids whose hash has expired are
// skipped.
func (r *RedisStore) ListAllCurrentStatuses(ctx context.Context) ([]domain.VehicleState, error) {
	ids, err := r.ListKnownVehicleIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.VehicleState{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, pipeErr := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, VehicleKey(id))
		}
		return nil
	})

	states := make([]domain.VehicleState, 0, len(ids))
	failed := 0
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			failed++
			continue
		}
		if len(data) == 0 {
			continue
		}
		states = append(states, stateFromHash(ids[i], data))
	}

	if pipeErr != nil && failed == len(cmds) {
		return nil, fmt.Errorf("%w: list statuses: %w", domain.ErrStoreUnavailable, pipeErr)
	}
	return states, nil
}

func stateFromHash(vehicleID string, data map[string]string) domain.VehicleState {
	state := domain.VehicleState{
		VehicleID: vehicleID,
		Status:    domain.StatusUnknown,
	}
	state.Latitude = parseFloatField(data, FieldLat)
	state.Longitude = parseFloatField(data, FieldLon)
	state.Speed = parseFloatField(data, FieldSpeed)

	if v, ok := data[FieldTimestamp]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			state.Timestamp = &n
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			n := int64(f)
			state.Timestamp = &n
		}
	}
	if v := data[FieldStatus]; v != "" {
		state.Status = v
	}
	if load := parseFloatField(data, FieldLoad); load != nil {
		state.Load = *load
	}
	return state
}

func parseFloatField(data map[string]string, field string) *float64 {
	v, ok := data[field]
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
