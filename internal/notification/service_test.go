package notification

import (
	"database/sql"
	"testing"

	"github.com/npezzotti/go-commhub/internal/database"
	"github.com/npezzotti/go-commhub/internal/server"
	"github.com/npezzotti/go-commhub/internal/testutil"
	"github.com/npezzotti/go-commhub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeDeliverer records pushed events and reports a fixed connection count.
type fakeDeliverer struct {
	delivered []*server.ServerMessage
	conns     int
}

func (f *fakeDeliverer) Deliver(identity string, msg *server.ServerMessage) int {
	f.delivered = append(f.delivered, msg)
	return f.conns
}

func TestNotify_PersistsAndPushes(t *testing.T) {
	mockRepo := &database.MockCommHubRepository{}
	deliverer := &fakeDeliverer{conns: 2}
	svc := NewService(testutil.TestLogger(t), mockRepo, deliverer, 50)

	mockRepo.On("CreateNotification", mock.MatchedBy(func(p database.CreateNotificationParams) bool {
		return p.RecipientId == "bob" && p.Kind == "message" && p.Text == "hi" && p.FromId == "alice"
	})).Return(database.Notification{
		Id:          "n1",
		RecipientId: "bob",
		Kind:        "message",
		Text:        "hi",
		FromId:      "alice",
		SubjectRef:  "m1",
	}, nil)

	n, err := svc.Notify("bob", types.KindMessage, "hi", "alice", "m1")
	require.NoError(t, err)
	assert.Equal(t, "n1", n.Id)
	assert.False(t, n.Read)

	require.Len(t, deliverer.delivered, 1)
	event := deliverer.delivered[0]
	require.NotNil(t, event.Notification, "expected a new-notification event")
	assert.Equal(t, "n1", event.Notification.Id)
	mockRepo.AssertExpectations(t)
}

func TestNotify_RecipientOffline(t *testing.T) {
	mockRepo := &database.MockCommHubRepository{}
	deliverer := &fakeDeliverer{conns: 0}
	svc := NewService(testutil.TestLogger(t), mockRepo, deliverer, 50)

	mockRepo.On("CreateNotification", mock.Anything).Return(database.Notification{
		Id:          "n1",
		RecipientId: "bob",
		Kind:        "message",
	}, nil)

	// the write must succeed even though the push reaches nobody
	n, err := svc.Notify("bob", types.KindMessage, "hi", "alice", "m1")
	require.NoError(t, err)
	assert.Equal(t, "n1", n.Id)
	mockRepo.AssertExpectations(t)
}

func TestNotify_InvalidKind(t *testing.T) {
	mockRepo := &database.MockCommHubRepository{}
	deliverer := &fakeDeliverer{}
	svc := NewService(testutil.TestLogger(t), mockRepo, deliverer, 50)

	_, err := svc.Notify("bob", types.NotificationKind("poke"), "hi", "alice", "")
	assert.ErrorIs(t, err, ErrInvalidKind)
	assert.Empty(t, deliverer.delivered, "expected no push for a rejected notification")
	mockRepo.AssertNotCalled(t, "CreateNotification", mock.Anything)
}

func TestNotify_CreateFails(t *testing.T) {
	mockRepo := &database.MockCommHubRepository{}
	deliverer := &fakeDeliverer{conns: 1}
	svc := NewService(testutil.TestLogger(t), mockRepo, deliverer, 50)

	mockRepo.On("CreateNotification", mock.Anything).Return(database.Notification{}, assert.AnError)

	_, err := svc.Notify("bob", types.KindMessage, "hi", "alice", "")
	assert.Error(t, err)
	assert.Empty(t, deliverer.delivered, "expected no push when the write fails")
}

func TestListFor_LimitClamped(t *testing.T) {
	tcases := []struct {
		name          string
		limit         int
		expectedLimit int
	}{
		{name: "zero uses default", limit: 0, expectedLimit: 50},
		{name: "negative uses default", limit: -5, expectedLimit: 50},
		{name: "within cap", limit: 10, expectedLimit: 10},
		{name: "above cap is clamped", limit: 500, expectedLimit: 50},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommHubRepository{}
			svc := NewService(testutil.TestLogger(t), mockRepo, &fakeDeliverer{}, 50)

			mockRepo.On("ListNotificationsFor", "bob", tc.expectedLimit).Return([]database.Notification{}, nil)

			_, err := svc.ListFor("bob", tc.limit)
			require.NoError(t, err)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestMarkRead(t *testing.T) {
	tcases := []struct {
		name        string
		dbErr       error
		expectedErr error
	}{
		{name: "success", dbErr: nil, expectedErr: nil},
		{name: "not owned or missing", dbErr: sql.ErrNoRows, expectedErr: ErrNotFoundOrForbidden},
		{name: "db failure", dbErr: assert.AnError, expectedErr: assert.AnError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommHubRepository{}
			svc := NewService(testutil.TestLogger(t), mockRepo, &fakeDeliverer{}, 50)

			mockRepo.On("MarkNotificationRead", "bob", "n1").Return(tc.dbErr)

			err := svc.MarkRead("bob", "n1")
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}
