package notification

import "time"

// MaxTitleLength bounds notification titles.
const MaxTitleLength = 100

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel is a delivery path for a notice.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)
