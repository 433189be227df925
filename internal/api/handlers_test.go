package api

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/go-commhub/internal/config"
	"github.com/npezzotti/go-commhub/internal/database"
	"github.com/npezzotti/go-commhub/internal/message"
	"github.com/npezzotti/go-commhub/internal/notification"
	"github.com/npezzotti/go-commhub/internal/server"
	"github.com/npezzotti/go-commhub/internal/stats"
	"github.com/npezzotti/go-commhub/internal/testutil"
	"github.com/npezzotti/go-commhub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func testIdentity(id string, admin bool) types.Identity {
	return types.Identity{Id: id, Username: id + "@example.com", Admin: admin}
}

// newTestApp wires a full CommHubApp against a mocked repository.
func newTestApp(t *testing.T, mockRepo *database.MockCommHubRepository) *CommHubApp {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return()
	su.On("Decr", mock.Anything).Return()

	logger := testutil.TestLogger(t)
	registry := server.NewConnectionRegistry(logger, su)
	calls := server.NewCallCoordinator(logger, registry, time.Minute, su)
	notifications := notification.NewService(logger, mockRepo, registry, 50)
	messages := message.NewService(logger, mockRepo, notifications)

	cfg, err := config.NewConfig(
		"localhost:8000",
		"postgres://test",
		base64.StdEncoding.EncodeToString(testSigningKey),
		[]string{"http://localhost:3000"},
		time.Minute,
		50,
		"info",
		false,
	)
	require.NoError(t, err)

	return NewCommHubApp(http.NewServeMux(), logger, registry, calls, messages, notifications, mockRepo, cfg)
}

// doRequest runs a request through the full handler chain as identity.
func doRequest(t *testing.T, app *CommHubApp, identity *types.Identity, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, reader)
	if identity != nil {
		req.AddCookie(&http.Cookie{
			Name:  tokenCookieKey,
			Value: testToken(t, testSigningKey, identity.Id, identity.Username, identity.Admin),
		})
	}

	rec := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rec, req)
	return rec
}

func expectEnsureIdentity(mockRepo *database.MockCommHubRepository, identity types.Identity) {
	mockRepo.On("EnsureIdentity", database.EnsureIdentityParams{
		Id:       identity.Id,
		Username: identity.Username,
	}).Return(database.Identity{Id: identity.Id, Username: identity.Username}, nil)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		mockRepo.On("Ping").Return(nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, nil, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		mockRepo.On("Ping").Return(assert.AnError)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, nil, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestCreateMessage(t *testing.T) {
	alice := testIdentity("alice", false)

	t.Run("success", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("IdentityExists", "bob").Return(true, nil)
		mockRepo.On("CreateMessage", mock.Anything).Return(database.Message{
			Id:         "m1",
			SenderId:   "alice",
			ReceiverId: "bob",
			Content:    "hi",
			MediaKind:  "none",
		}, nil)
		mockRepo.On("CreateNotification", mock.Anything).Return(database.Notification{
			Id:          "n1",
			RecipientId: "bob",
			Kind:        "message",
		}, nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPost, "/api/messages",
			`{"recipient_id":"bob","content":"hi"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var msg types.Message
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
		assert.Equal(t, "m1", msg.Id)
		assert.Equal(t, "bob", msg.ReceiverId)
		mockRepo.AssertExpectations(t)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("IdentityExists", "ghost").Return(false, nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPost, "/api/messages",
			`{"recipient_id":"ghost","content":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid recipient")
	})

	t.Run("missing body fields", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPost, "/api/messages", `{"recipient_id":"bob"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPost, "/api/messages", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no token", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, nil, http.MethodPost, "/api/messages",
			`{"recipient_id":"bob","content":"hi"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestListMessages(t *testing.T) {
	t.Run("own messages", func(t *testing.T) {
		alice := testIdentity("alice", false)
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("ListMessagesFor", "alice").Return([]database.Message{
			{Id: "m1", SenderId: "alice", ReceiverId: "bob", MediaKind: "none"},
		}, nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodGet, "/api/messages", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var msgs []types.Message
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
		assert.Len(t, msgs, 1)
		mockRepo.AssertNotCalled(t, "ListAllMessages")
	})

	t.Run("admin sees all", func(t *testing.T) {
		admin := testIdentity("root", true)
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, admin)
		mockRepo.On("ListAllMessages").Return([]database.Message{
			{Id: "m1", MediaKind: "none"},
			{Id: "m2", MediaKind: "none"},
		}, nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &admin, http.MethodGet, "/api/messages", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var msgs []types.Message
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
		assert.Len(t, msgs, 2)
		mockRepo.AssertNotCalled(t, "ListMessagesFor", mock.Anything)
	})
}

func TestGetConversation(t *testing.T) {
	alice := testIdentity("alice", false)
	mockRepo := &database.MockCommHubRepository{}
	expectEnsureIdentity(mockRepo, alice)
	mockRepo.On("ConversationBetween", "alice", "bob").Return([]database.Message{
		{Id: "m1", SenderId: "alice", ReceiverId: "bob", MediaKind: "none"},
		{Id: "m2", SenderId: "bob", ReceiverId: "alice", MediaKind: "none"},
	}, nil)
	app := newTestApp(t, mockRepo)

	rec := doRequest(t, app, &alice, http.MethodGet, "/api/conversations/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []types.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].Id, "expected oldest message first")
}

func TestGetUnreadCount(t *testing.T) {
	alice := testIdentity("alice", false)
	mockRepo := &database.MockCommHubRepository{}
	expectEnsureIdentity(mockRepo, alice)
	mockRepo.On("UnreadCountFrom", "bob", "alice").Return(4, nil)
	app := newTestApp(t, mockRepo)

	rec := doRequest(t, app, &alice, http.MethodGet, "/api/conversations/bob/unread", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 4, body["unread_count"])
}

func TestMarkMessagesRead(t *testing.T) {
	alice := testIdentity("alice", false)

	t.Run("success", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("MarkMessagesRead", "alice", "bob").Return(nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPost, "/api/messages/mark-read", `{"from_id":"bob"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("missing from_id", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPost, "/api/messages/mark-read", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteMessage(t *testing.T) {
	t.Run("requires admin", func(t *testing.T) {
		alice := testIdentity("alice", false)
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodDelete, "/api/messages/m1", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		mockRepo.AssertNotCalled(t, "DeleteMessage", mock.Anything)
	})

	t.Run("admin deletes", func(t *testing.T) {
		admin := testIdentity("root", true)
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, admin)
		mockRepo.On("DeleteMessage", "m1").Return(nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &admin, http.MethodDelete, "/api/messages/m1", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing message", func(t *testing.T) {
		admin := testIdentity("root", true)
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, admin)
		mockRepo.On("DeleteMessage", "gone").Return(sql.ErrNoRows)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &admin, http.MethodDelete, "/api/messages/gone", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListNotifications(t *testing.T) {
	alice := testIdentity("alice", false)

	t.Run("default limit", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("ListNotificationsFor", "alice", 50).Return([]database.Notification{
			{Id: "n1", RecipientId: "alice", Kind: "message"},
		}, nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodGet, "/api/notifications", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var notifications []types.Notification
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&notifications))
		assert.Len(t, notifications, 1)
	})

	t.Run("explicit limit", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("ListNotificationsFor", "alice", 5).Return([]database.Notification{}, nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodGet, "/api/notifications?limit=5", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodGet, "/api/notifications?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMarkNotificationRead(t *testing.T) {
	alice := testIdentity("alice", false)

	t.Run("success", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("MarkNotificationRead", "alice", "n1").Return(nil)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPatch, "/api/notifications/n1/read", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"read":true`)
	})

	t.Run("not owned or missing", func(t *testing.T) {
		mockRepo := &database.MockCommHubRepository{}
		expectEnsureIdentity(mockRepo, alice)
		mockRepo.On("MarkNotificationRead", "alice", "n2").Return(sql.ErrNoRows)
		app := newTestApp(t, mockRepo)

		rec := doRequest(t, app, &alice, http.MethodPatch, "/api/notifications/n2/read", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
