package repository

import "context"

type IdempotencyState int

const (
	//初回。呼び出し側が処理してComplete/Abortする
	IdempotencyNew IdempotencyState = iota
	//同じキーの処理がまだ終わっていない
	IdempotencyInFlight
	//完了済み。Payloadに前回の結果
	IdempotencyDone
)

type IdempotencyRecord struct {
	State IdempotencyState
	//キーを取ったリクエストの中身（購入IDなど）。不明なら空
	Fingerprint string
	Payload     []byte
	//Newのときだけ。Complete/Abortに渡す
	Lease string
}

// 二重送信防止キーの保存先（Redis）。
// Complete/AbortはLeaseが今も自分のものである場合だけ効く
type IdempotencyStore interface {
	Begin(ctx context.Context, key string, fingerprint string) (IdempotencyRecord, error)
	Complete(ctx context.Context, key string, lease string, payload []byte) error
	Abort(ctx context.Context, key string, lease string) error
}
