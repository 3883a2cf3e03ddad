package services

import "errors"

// 核心流程对外暴露的错误类型，由 HTTP 层映射为状态码
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrOracleUnavailable = errors.New("payment oracle unavailable")
	// ErrConfiguration means the process is misconfigured, not that the request was bad.
	ErrConfiguration = errors.New("configuration error")
)
