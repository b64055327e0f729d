package comm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rover/internal/logging"
)

// Link tracks the state of one hardware connection and runs its
// transactions with retries.
type Link struct {
	name        string
	config      ConnectionConfig
	shouldRetry func(error) bool

	mutex        sync.RWMutex
	status       ConnectionStatus
	lastError    error
	transactions uint64
	failures     uint64
	retries      uint64

	logger *logging.Logger
}

// NewLink 创建连接状态跟踪器
func NewLink(name string, config ConnectionConfig) *Link {
	return &Link{
		name:   name,
		config: config,
		status: StatusDisconnected,
		logger: logging.GetLogger("comm").With("link", name),
	}
}

// SetRetryFilter limits retries to errors for which fn returns true.
func (l *Link) SetRetryFilter(fn func(error) bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.shouldRetry = fn
}

// GetStatus 获取连接状态
func (l *Link) GetStatus() ConnectionStatus {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.status
}

// SetStatus 设置状态
func (l *Link) SetStatus(status ConnectionStatus) {
	l.mutex.Lock()
	prev := l.status
	l.status = status
	l.mutex.Unlock()

	if prev != status {
		l.logger.Debug("Link status changed", "from", prev, "to", status)
	}
}

// GetLastError 获取最后错误
func (l *Link) GetLastError() error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.lastError
}

// IsConnected 检查是否连接
func (l *Link) IsConnected() bool {
	return l.GetStatus() == StatusConnected
}

// HandleWithError records err as the link's last error and returns it.
func (l *Link) HandleWithError(err error) error {
	if err == nil {
		return nil
	}
	l.mutex.Lock()
	l.lastError = err
	l.failures++
	l.mutex.Unlock()
	return err
}

func (l *Link) Stats() Stats {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return Stats{
		Name:         l.name,
		Status:       l.status,
		LastError:    l.lastError,
		Transactions: l.transactions,
		Failures:     l.failures,
		Retries:      l.retries,
	}
}

// RetryWithTimeout 带超时的重试机制
func (l *Link) RetryWithTimeout(ctx context.Context, operation func() error) error {
	l.mutex.Lock()
	l.transactions++
	shouldRetry := l.shouldRetry
	l.mutex.Unlock()

	var lastErr error

	for i := 0; i <= l.config.RetryCount; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if shouldRetry != nil && !shouldRetry(err) {
			return l.HandleWithError(err)
		}

		// 如果是最后一次尝试，直接返回错误
		if i == l.config.RetryCount {
			break
		}

		l.mutex.Lock()
		l.retries++
		l.mutex.Unlock()

		select {
		case <-time.After(l.config.RetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}

		l.logger.Warn("Retry after error", "attempt", i+1, "max_attempts", l.config.RetryCount, "error", err)
	}

	if l.config.RetryCount == 0 {
		return l.HandleWithError(lastErr)
	}
	return l.HandleWithError(fmt.Errorf("operation failed after %d retries, last error: %w", l.config.RetryCount, lastErr))
}
