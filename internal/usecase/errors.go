package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// usecaseの失敗はすべてこれで返す。Errは原因（ログ用、クライアントには出さない）
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 500 db error。原因は残す
func dbError(err error) error {
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Message: "db error",
		Err:     err,
	}
}

func errForbidden() error {
	return NewHTTPError(http.StatusForbidden, "forbidden")
}
