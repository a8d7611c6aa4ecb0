package database

import (
	"github.com/stretchr/testify/mock"
)

type MockSparkRepository struct {
	mock.Mock
}

func (m *MockSparkRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSparkRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSparkRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSparkRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSparkRepository) VerifyEmail(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockSparkRepository) TouchOnline(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockSparkRepository) SetOffline(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockSparkRepository) ResetAllOffline() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSparkRepository) RecomputeFame(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockSparkRepository) CreateLike(likerId, likedId int) (bool, error) {
	args := m.Called(likerId, likedId)
	return args.Bool(0), args.Error(1)
}
func (m *MockSparkRepository) DeleteLike(likerId, likedId int) error {
	args := m.Called(likerId, likedId)
	return args.Error(0)
}
func (m *MockSparkRepository) CanChat(accountA, accountB int) (bool, error) {
	args := m.Called(accountA, accountB)
	return args.Bool(0), args.Error(1)
}
func (m *MockSparkRepository) CreateMessage(senderId, receiverId int, content string) (Message, error) {
	args := m.Called(senderId, receiverId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSparkRepository) MarkMessageRead(messageId, readerId int) (Message, error) {
	args := m.Called(messageId, readerId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSparkRepository) GetMessages(accountA, accountB, before, limit int) ([]Message, error) {
	args := m.Called(accountA, accountB, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockSparkRepository) CountUnreadMessages(accountId int) (int, error) {
	args := m.Called(accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockSparkRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockSparkRepository) MarkNotificationRead(notificationId, accountId int) error {
	args := m.Called(notificationId, accountId)
	return args.Error(0)
}
func (m *MockSparkRepository) MarkAllNotificationsRead(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockSparkRepository) ListNotifications(accountId, limit int) ([]Notification, error) {
	args := m.Called(accountId, limit)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockSparkRepository) CountUnreadNotifications(accountId int) (int, error) {
	args := m.Called(accountId)
	return args.Int(0), args.Error(1)
}
