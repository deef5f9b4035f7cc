package rewards

import (
	"errors"
	"fmt"
)

// ошибки хранилища
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("concurrent modification")
	ErrDuplicate = errors.New("already exists")
)

// ошибки предметной области - возвращаются клиенту как есть
var (
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrInsufficientPoints     = errors.New("insufficient points")
	ErrInvalidPoints          = errors.New("points must be positive")
	ErrInvalidCode            = errors.New("invalid referral code")
	ErrSelfReferral           = errors.New("self referral is not allowed")
	ErrAlreadyReferred        = errors.New("user is already referred")
	ErrInvalidOrExpiredCoupon = errors.New("invalid or expired coupon")
	ErrCouponAlreadyUsed      = fmt.Errorf("%w: already used", ErrInvalidOrExpiredCoupon)
	ErrCouponExpired          = fmt.Errorf("%w: expired", ErrInvalidOrExpiredCoupon)
	ErrRateLimited            = errors.New("too many attempts")
	ErrInvalidFlashSale       = errors.New("invalid flash sale config")
	ErrRequestRolledBack      = errors.New("request was rolled back, retry with a new request id")
)

var domainErrors = []error{
	ErrInvalidTransition,
	ErrInsufficientPoints,
	ErrInvalidPoints,
	ErrInvalidCode,
	ErrSelfReferral,
	ErrAlreadyReferred,
	ErrInvalidOrExpiredCoupon,
	ErrRateLimited,
	ErrInvalidFlashSale,
	ErrRequestRolledBack,
}

// IsDomainError отличает пользовательские ошибки от сбоев хранилища
func IsDomainError(err error) bool {
	for _, e := range domainErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
