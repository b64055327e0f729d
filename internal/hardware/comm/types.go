// Package comm holds the connection bookkeeping shared by the hardware links:
// status, last error and the bounded retry loop around each transaction.
package comm

import "time"

// ConnectionStatus 表示连接状态
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "disconnected"
	}
}

// ConnectionConfig 基础连接配置
type ConnectionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RetryCount    int           `yaml:"retry_count"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Stats is a snapshot of a link's health.
type Stats struct {
	Name         string
	Status       ConnectionStatus
	LastError    error
	Transactions uint64
	Failures     uint64
	Retries      uint64
}
