package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	repo "marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 処理中マーカーの寿命。落ちたリクエストのキーが永久に残らないように
const pendingTTL = 30 * time.Second

// 自分のマーカーのままなら結果で上書き
const completeScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`

// 自分のマーカーのときだけ消す
const abortScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// 使うコマンドだけ。*redis.Clientがそのまま入る
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisに置く値。処理中はTokenつき、完了後はResultつき
type idemEntry struct {
	Pending     bool            `json:"pending,omitempty"`
	Token       string          `json:"token,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type IdempotencyStore struct {
	rdb Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) Begin(ctx context.Context, key string, fingerprint string) (repo.IdempotencyRecord, error) {
	key = idemKey(key)
	marker, err := json.Marshal(idemEntry{Pending: true, Token: uuid.NewString(), Fingerprint: fingerprint})
	if err != nil {
		return repo.IdempotencyRecord{}, err
	}

	acquired, err := s.rdb.SetNX(ctx, key, string(marker), pendingTTL).Result()
	if err != nil {
		return repo.IdempotencyRecord{}, fmt.Errorf("setnx %s: %w", key, err)
	}
	if acquired {
		return repo.IdempotencyRecord{State: repo.IdempotencyNew, Fingerprint: fingerprint, Lease: string(marker)}, nil
	}

	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// 取れなかった直後に消えた。もう一度だけ取りに行く
		acquired, err = s.rdb.SetNX(ctx, key, string(marker), pendingTTL).Result()
		if err != nil {
			return repo.IdempotencyRecord{}, fmt.Errorf("setnx %s: %w", key, err)
		}
		if acquired {
			return repo.IdempotencyRecord{State: repo.IdempotencyNew, Fingerprint: fingerprint, Lease: string(marker)}, nil
		}
		return repo.IdempotencyRecord{State: repo.IdempotencyInFlight}, nil
	}
	if err != nil {
		return repo.IdempotencyRecord{}, fmt.Errorf("get %s: %w", key, err)
	}

	var e idemEntry
	if err := json.Unmarshal(val, &e); err != nil {
		return repo.IdempotencyRecord{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if e.Pending {
		return repo.IdempotencyRecord{State: repo.IdempotencyInFlight, Fingerprint: e.Fingerprint}, nil
	}
	return repo.IdempotencyRecord{State: repo.IdempotencyDone, Fingerprint: e.Fingerprint, Payload: e.Result}, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, lease string, payload []byte) error {
	key = idemKey(key)
	var pending idemEntry
	if err := json.Unmarshal([]byte(lease), &pending); err != nil {
		return fmt.Errorf("decode lease: %w", err)
	}
	done, err := json.Marshal(idemEntry{Fingerprint: pending.Fingerprint, Result: payload})
	if err != nil {
		return err
	}

	n, err := s.rdb.Eval(ctx, completeScript, []string{key}, lease, string(done), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	if n == 0 {
		return repo.ErrLeaseLost
	}
	return nil
}

// 他のリクエストが取り直したキーは消さない
func (s *IdempotencyStore) Abort(ctx context.Context, key string, lease string) error {
	key = idemKey(key)
	if err := s.rdb.Eval(ctx, abortScript, []string{key}, lease).Err(); err != nil {
		return fmt.Errorf("abort %s: %w", key, err)
	}
	return nil
}
