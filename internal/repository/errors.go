package repository

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	//CASで状態が変わっていた / シリアライズ失敗
	ErrConflict = errors.New("conflict")
	//処理中マーカーが期限切れなどで他のリクエストに移っていた
	ErrLeaseLost = errors.New("idempotency lease lost")
)
