// Package redisstore хранит ключи идемпотентности в Redis, чтобы их видели все
// реплики сервиса. Записи истекают средствами Redis по ttl_at.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultKeyPrefix = "marketplace:idem"
	opTimeout        = 3 * time.Second
	minKeyTTL        = time.Second
	scanBatch        = 100
	maxWatchRetries  = 3
)

// IdempotencyRepository хранит ключи идемпотентности в Redis.
type IdempotencyRepository struct {
	client *redis.Client
	prefix string
}

// Option настраивает IdempotencyRepository.
type Option func(*IdempotencyRepository)

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(r *IdempotencyRepository) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewIdempotencyRepository создаёт репозиторий поверх готового клиента.
func NewIdempotencyRepository(client *redis.Client, opts ...Option) *IdempotencyRepository {
	r := &IdempotencyRepository{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect разбирает redis:// URL и проверяет доступность сервера.
func Connect(ctx context.Context, url string, db int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if db > 0 {
		opts.DB = db
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// record хранится в Redis как JSON.
type record struct {
	Key          string    `json:"key"`
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (rec record) toDomain() domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          rec.Key,
		RequestHash:  rec.RequestHash,
		ResponseBody: append([]byte(nil), rec.ResponseBody...),
		HTTPStatus:   rec.HTTPStatus,
		Status:       domain.IdempotencyStatus(rec.Status),
		TTLAt:        rec.TTLAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func fromDomain(rec domain.IdempotencyRecord) record {
	return record{
		Key:          rec.Key,
		RequestHash:  rec.RequestHash,
		ResponseBody: rec.ResponseBody,
		HTTPStatus:   rec.HTTPStatus,
		Status:       string(rec.Status),
		TTLAt:        rec.TTLAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func (r *IdempotencyRepository) redisKey(key string) string {
	return r.prefix + ":" + key
}

func keyTTL(ttlAt, now time.Time) time.Duration {
	ttl := ttlAt.Sub(now)
	if ttl < minKeyTTL {
		return minKeyTTL
	}
	return ttl
}

// CreateProcessing атомарно резервирует ключ через SETNX.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := time.Now().UTC()
	rec, err := domain.NewProcessingRecord(key, requestHash, ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	data, err := json.Marshal(fromDomain(rec))
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("encode idempotency record: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created, err := r.client.SetNX(opCtx, r.redisKey(rec.Key), data, keyTTL(rec.TTLAt, now)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if created {
		return rec, nil
	}

	existing, err := r.Get(ctx, rec.Key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return existing, existing.ReuseError(rec.RequestHash)
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rec, err := r.load(ctx, r.client, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return rec.toDomain(), nil
}

// getter покрывает общий метод *redis.Client и *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *IdempotencyRepository) load(ctx context.Context, c getter, key string) (record, error) {
	data, err := c.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return record{}, domain.ErrIdempotencyKeyNotFound
		}
		return record{}, fmt.Errorf("get idempotency record: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	if !domain.IdempotencyStatus(rec.Status).Valid() {
		return record{}, fmt.Errorf("invalid idempotency status %q for key %s", rec.Status, key)
	}
	return rec, nil
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.mark(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.mark(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// mark обновляет запись под WATCH, сохраняя исходный срок жизни.
func (r *IdempotencyRepository) mark(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	redisKey := r.redisKey(key)
	update := func(tx *redis.Tx) error {
		rec, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		rec.Status = string(status)
		rec.ResponseBody = responseBody
		rec.HTTPStatus = httpStatus
		rec.UpdatedAt = now

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode idempotency record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, keyTTL(rec.TTLAt, now))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, update, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return fmt.Errorf("mark idempotency key status: %w", err)
		}
		return err
	}
	return fmt.Errorf("mark idempotency key status: %w", redis.TxFailedErr)
}

// Release удаляет ключ под WATCH, только пока он в статусе processing.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	redisKey := r.redisKey(key)
	release := func(tx *redis.Tx) error {
		rec, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if domain.IdempotencyStatus(rec.Status) != domain.IdempotencyStatusProcessing {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, release, redisKey)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil, errors.Is(err, domain.ErrIdempotencyKeyNotFound):
			return nil
		default:
			return fmt.Errorf("release idempotency key: %w", err)
		}
	}
	return fmt.Errorf("release idempotency key: %w", redis.TxFailedErr)
}

// DeleteExpired удаляет записи с ttl_at <= before. Обычно Redis истекает их сам;
// метод нужен, когда cleanup-воркер работает с укороченным окном хранения.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefix+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if limit > 0 && removed >= limit {
			break
		}
		redisKey := iter.Val()
		key := strings.TrimPrefix(redisKey, r.prefix+":")

		rec, err := r.load(ctx, r.client, key)
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if rec.TTLAt.After(before) {
			continue
		}
		n, err := r.client.Del(ctx, redisKey).Result()
		if err != nil {
			return removed, fmt.Errorf("delete expired idempotency record: %w", err)
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan idempotency records: %w", err)
	}
	return removed, nil
}

// Ping проверяет доступность Redis (для health-проверок).
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
