package database

import "time"

type User struct {
	Id             int
	Username       string
	EmailAddress   string
	PasswordHash   string
	EmailVerified  bool
	FameRating     float64
	IsOnline       bool
	LastConnection time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Message struct {
	Id         int
	SenderId   int
	ReceiverId int
	Content    string
	Read       bool
	SentAt     time.Time
}

type Like struct {
	Id        int
	LikerId   int
	LikedId   int
	CreatedAt time.Time
}

type Notification struct {
	Id            int
	UserId        int
	Kind          string
	ActorId       int
	ActorUsername string
	Read          bool
	CreatedAt     time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateNotificationParams struct {
	UserId  int
	Kind    string
	ActorId int
}
