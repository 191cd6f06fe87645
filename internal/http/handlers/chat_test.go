package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/auth"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/chat"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/http/middleware"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/repository"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/ws"
)

type testEnv struct {
	router   *gin.Engine
	verifier *auth.JWTVerifier
	hub      *ws.Hub
	service  *chat.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Message{}))

	users := repository.NewUserRepository(db)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	for _, u := range []models.User{
		{Name: "Ana", Email: "ana@clinic.test", Role: "veterinarian", PasswordHash: string(hash)},
		{Name: "Bruno", Email: "bruno@clinic.test", Role: "receptionist", PasswordHash: string(hash)},
	} {
		u := u
		require.NoError(t, users.Create(context.Background(), &u))
	}

	verifier := auth.NewJWTVerifier("test-secret")
	hub := ws.NewHub(logger)
	notifier := chat.NewNotifier(hub, logger)
	go notifier.Run()
	t.Cleanup(notifier.Close)

	service := chat.NewService(repository.NewMessageRepository(db), users, notifier, logger)

	r := gin.New()

	authH := &AuthHandler{Users: users, Verifier: verifier, TokenTTL: time.Hour, Log: logger}
	r.POST("/api/v1/auth/login", authH.Login)

	wsH := &WSHandler{Hub: hub, Service: service, Verifier: verifier, Log: logger}
	r.GET("/ws", wsH.Handle)

	authed := r.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(verifier))

	chatH := &ChatHandler{Service: service, Log: logger}
	authed.POST("/messages", chatH.SendMessage)
	authed.GET("/messages/received", chatH.ListReceived)
	authed.GET("/messages/sent", chatH.ListSent)
	authed.GET("/messages/unread-count", chatH.UnreadCount)
	authed.PATCH("/messages/read", chatH.MarkRead)
	authed.DELETE("/messages/:id", chatH.DeleteMessage)
	authed.GET("/conversations", chatH.ListConversations)
	authed.GET("/conversations/:userId/messages", chatH.ListConversationMessages)
	authed.PATCH("/conversations/:userId/read", chatH.MarkConversationRead)

	return &testEnv{router: r, verifier: verifier, hub: hub, service: service}
}

func (e *testEnv) do(t *testing.T, method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		token, err := e.verifier.Issue(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRoutesRequireAuth(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/conversations", 0, nil)
	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestLoginIssuesUsableToken(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/login", 0, gin.H{
		"email":    "ana@clinic.test",
		"password": "secret123",
	})
	req.Equal(http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))

	userID, err := env.verifier.Verify(resp.AccessToken)
	req.NoError(err)
	req.Equal(uint(1), userID)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/login", 0, gin.H{
		"email":    "ana@clinic.test",
		"password": "wrong",
	})
	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestSendMessage(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/messages", 1, gin.H{
		"recipient_id": 2,
		"body":         "x-ray results are in",
	})
	req.Equal(http.StatusCreated, w.Code)

	var resp struct {
		Data models.Message `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.NotZero(resp.Data.ID)
	req.Equal(uint(1), resp.Data.SenderID)
	req.False(resp.Data.Read)

	w = env.do(t, http.MethodGet, "/api/v1/messages/unread-count", 2, nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"count":1}`, w.Body.String())
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"missing body", gin.H{"recipient_id": 2}, http.StatusBadRequest},
		{"blank body", gin.H{"recipient_id": 2, "body": "   "}, http.StatusBadRequest},
		{"self message", gin.H{"recipient_id": 1, "body": "hi"}, http.StatusBadRequest},
		{"unknown recipient", gin.H{"recipient_id": 99, "body": "hi"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/messages", 1, tt.body)
			require.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMarkReadAuthorization(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/messages", 1, gin.H{
		"recipient_id": 2,
		"body":         "hello",
	})
	req.Equal(http.StatusCreated, w.Code)

	var resp struct {
		Data models.Message `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))

	// The sender cannot mark their own outgoing message as read.
	w = env.do(t, http.MethodPatch, "/api/v1/messages/read", 1, gin.H{
		"message_ids": []uint{resp.Data.ID},
	})
	req.Equal(http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPatch, "/api/v1/messages/read", 2, gin.H{
		"message_ids": []uint{resp.Data.ID},
	})
	req.Equal(http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/messages/unread-count", 2, nil)
	req.JSONEq(`{"count":0}`, w.Body.String())
}

func TestDeleteMessageAuthorization(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/messages", 1, gin.H{
		"recipient_id": 2,
		"body":         "sent in error",
	})
	req.Equal(http.StatusCreated, w.Code)

	var resp struct {
		Data models.Message `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	id := resp.Data.ID

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/messages/%d", id), 2, nil)
	req.Equal(http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/messages/%d", id), 1, nil)
	req.Equal(http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/messages/%d", id), 1, nil)
	req.Equal(http.StatusNotFound, w.Code)
}

func TestConversationEndpoints(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	for _, body := range []string{"one", "two"} {
		w := env.do(t, http.MethodPost, "/api/v1/messages", 2, gin.H{
			"recipient_id": 1,
			"body":         body,
		})
		req.Equal(http.StatusCreated, w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/conversations", 1, nil)
	req.Equal(http.StatusOK, w.Code)

	var convResp struct {
		Data []chat.Conversation `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &convResp))
	req.Len(convResp.Data, 1)
	req.Equal(uint(2), convResp.Data[0].User.ID)
	req.Equal("Bruno", convResp.Data[0].User.Name)
	req.EqualValues(2, convResp.Data[0].UnreadCount)
	req.Equal("two", convResp.Data[0].LastMessage.Body)

	w = env.do(t, http.MethodGet, "/api/v1/conversations/2/messages", 1, nil)
	req.Equal(http.StatusOK, w.Code)

	var msgResp struct {
		Data []models.Message `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &msgResp))
	req.Len(msgResp.Data, 2)
	req.Equal("one", msgResp.Data[0].Body)

	w = env.do(t, http.MethodPatch, "/api/v1/conversations/2/read", 1, nil)
	req.Equal(http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/messages/unread-count", 1, nil)
	req.JSONEq(`{"count":0}`, w.Body.String())
}

func TestWSAdmissionRejectsBadCredentials(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ws", 0, nil)
	req.Equal(http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/ws?token=garbage", 0, nil)
	req.Equal(http.StatusUnauthorized, w.Code)

	// Nothing was ever registered for any user.
	req.Zero(env.hub.Connections(1))
	req.Zero(env.hub.Connections(2))
}
