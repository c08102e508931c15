package adapter

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration // default 10s
	// SendRatePerSec caps outbound sends across all chats. 0 disables.
	SendRatePerSec int
}
