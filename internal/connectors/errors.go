package connectors

import (
	"errors"
	"fmt"
	"time"
)

// ThrottleError — runner попросил подождать (429 + Retry-After).
// ReliabilityWrapper использует RetryAfter как задержку перед следующей попыткой.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// StatusError — runner ответил неуспешным HTTP статусом.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runner returned status %d: %s", e.Code, e.Body)
}

// NotSentError — запрос к runner не ушел в сеть (сборка или кодирование).
// Задача гарантированно не запускалась, повтор безопасен.
type NotSentError struct {
	Cause error
}

func (e *NotSentError) Error() string {
	return fmt.Sprintf("runner request not sent: %v", e.Cause)
}

func (e *NotSentError) Unwrap() error { return e.Cause }

// Retryable сообщает, можно ли повторить вызов без риска двойного исполнения.
// Ответ 429 и неотправленный запрос: runner задачу не начинал.
func Retryable(err error) bool {
	var tErr *ThrottleError
	var nsErr *NotSentError
	return errors.As(err, &tErr) || errors.As(err, &nsErr)
}
