package upstream

import (
	"fmt"
	"time"
)

// ThrottleError возвращает реализация Caller, прочитавшая Retry-After
// от апстрима. Ретраи ReliabilityCaller используют эту задержку вместо
// экспоненциального бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
