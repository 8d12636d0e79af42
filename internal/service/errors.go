package service

import "errors"

var (
	// ErrInvalidInput - 요청 값 검증 실패 (handler에서 400)
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound - 대상 없음 (handler에서 404)
	ErrNotFound = errors.New("not found")
)
