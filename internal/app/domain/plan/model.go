package plan

import "time"

// Plan is a savings plan members join (daily, weekly, monthly...).
type Plan struct {
	ID   int64  `json:"id" yaml:"-"`
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// Message is a post in a plan's community feed.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	PlanID    int64     `json:"planId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UserName  string    `json:"userName,omitempty"`
}
