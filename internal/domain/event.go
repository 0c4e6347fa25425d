// internal/domain/event.go
package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// LogEvent is a raw log notification pushed by the chain subscription.
type LogEvent struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string
	Failed    bool
	Received  time.Time
}

// LaunchEvent describes a freshly created pool. It only lives for the
// duration of pipeline processing.
type LaunchEvent struct {
	Mint      solana.PublicKey
	Pool      solana.PublicKey
	Name      string
	Symbol    string
	URI       string
	Slot      uint64
	Signature solana.Signature
}

// NotificationEvent is the kind of message delivered to an operator channel.
type NotificationEvent string

const (
	NotifyBuy  NotificationEvent = "Buy"
	NotifySale NotificationEvent = "Sale"
	NotifyStop NotificationEvent = "Stopped sniping"
)

// Notification is a single operator-facing message.
type Notification struct {
	ChannelID int64
	Message   string
	Event     NotificationEvent
	Mint      string
	Amount    float64
}
