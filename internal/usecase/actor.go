package usecase

import (
	"time"

	"marketplace/internal/domain/model"
)

// 認証済みの呼び出し元。JWTから組み立てる
type Actor struct {
	UserID int64
	Role   model.Role
}

// 各操作の最初に呼ぶ
func (a Actor) require(roles ...model.Role) error {
	if a.UserID <= 0 {
		return errForbidden()
	}
	for _, r := range roles {
		if a.Role == r {
			return nil
		}
	}
	return errForbidden()
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
