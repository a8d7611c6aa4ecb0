package database

// SparkRepository is the persistence collaborator for the realtime core:
// accounts, presence flags, likes/matches, messages and notifications.
type SparkRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	VerifyEmail(accountId int) error

	TouchOnline(accountId int) error
	SetOffline(accountId int) error
	ResetAllOffline() error
	RecomputeFame(accountId int) error

	CreateLike(likerId, likedId int) (bool, error)
	DeleteLike(likerId, likedId int) error
	CanChat(accountA, accountB int) (bool, error)

	CreateMessage(senderId, receiverId int, content string) (Message, error)
	MarkMessageRead(messageId, readerId int) (Message, error)
	GetMessages(accountA, accountB, before, limit int) ([]Message, error)
	CountUnreadMessages(accountId int) (int, error)

	CreateNotification(params CreateNotificationParams) (Notification, error)
	MarkNotificationRead(notificationId, accountId int) error
	MarkAllNotificationsRead(accountId int) error
	ListNotifications(accountId, limit int) ([]Notification, error)
	CountUnreadNotifications(accountId int) (int, error)
}
