package tracker

import (
	"errors"
	"fmt"
)

// ErrRateLimited 는 sliding window 초과로 요청 전체가 버려졌음을 뜻한다.
// 어떤 저장도 일어나지 않는다.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrStorage 는 컬렉션 쓰기 실패를 감싼다. 해당 요청은 실패로 처리한다.
var ErrStorage = errors.New("storage write failure")

// ValidationError 는 필수 필드 누락/형식 오류이다. 저장은 일어나지 않는다.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidation 은 err 체인에 ValidationError 가 있으면 그 사유를 돌려준다.
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
