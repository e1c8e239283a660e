package handler_test

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/sanctuary/internal/handler"
	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/service/catalog"
)

func TestConversations_CRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	first := env.createConversation()
	second := env.createConversation()

	w := env.request(http.MethodPatch, "/api/v1/conversations/"+first, map[string]interface{}{
		"title": "Garden plans", "pinned": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.request(http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Conversations []struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Pinned bool   `json:"pinned"`
		} `json:"conversations"`
	}
	env.decode(w, &list)
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, first, list.Conversations[0].ID)
	assert.True(t, list.Conversations[0].Pinned)

	w = env.request(http.MethodGet, "/api/v1/conversations?search=garden", nil)
	env.decode(w, &list)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "Garden plans", list.Conversations[0].Title)

	w = env.request(http.MethodDelete, "/api/v1/conversations/"+second, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.request(http.MethodGet, "/api/v1/conversations/"+second, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessages_EditAndTrim(t *testing.T) {
	env := newTestEnv(t, nil)
	convID := env.createConversation()
	base := "/api/v1/conversations/" + convID + "/messages"

	addUser := func(text string) string {
		w := env.request(http.MethodPost, base, map[string]string{"role": "user", "content_text": text})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var msg struct {
			ID string `json:"id"`
		}
		env.decode(w, &msg)
		return msg.ID
	}

	ids := []string{addUser("first question")}

	// 助手消息由聊天流写入
	env.model.Chunks = []string{"first answer"}
	w := env.request(http.MethodPost, "/api/v1/chat", map[string]interface{}{
		"conversationId": convID,
		"messages":       []map[string]string{{"role": "user", "content": "first question"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	env.svc.Relay.Wait()

	w = env.request(http.MethodGet, "/api/v1/conversations/"+convID, nil)
	var before conversationDetail
	env.decode(w, &before)
	require.Len(t, before.Messages, 2)
	require.Equal(t, model.RoleAssistant, before.Messages[1].Role)
	ids = append(ids, before.Messages[1].ID)

	time.Sleep(2 * time.Millisecond)
	ids = append(ids, addUser("second question"))

	for _, role := range []string{"tool", "assistant"} {
		w = env.request(http.MethodPost, base, map[string]string{"role": role, "content_text": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code, role)
	}

	// 只改图片时保留文字
	w = env.request(http.MethodPatch, base+"/"+ids[2], map[string]string{"imageData": "data:image/png;base64,AAAA"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var imageOnly model.Message
	env.decode(w, &imageOnly)
	assert.Equal(t, "second question", imageOnly.ContentText)
	assert.Equal(t, "data:image/png;base64,AAAA", imageOnly.ImageData())

	// 只能编辑用户消息
	w = env.request(http.MethodPatch, base+"/"+ids[1], map[string]string{"content_text": "edited"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(http.MethodPatch, base+"/"+ids[0], map[string]string{"content_text": "reworded question"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.request(http.MethodDelete, base, map[string]string{"afterMessageId": ids[0]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var trimmed struct {
		Deleted int64 `json:"deleted"`
	}
	env.decode(w, &trimmed)
	assert.Equal(t, int64(2), trimmed.Deleted)

	w = env.request(http.MethodGet, "/api/v1/conversations/"+convID, nil)
	var detail conversationDetail
	env.decode(w, &detail)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, "reworded question", detail.Messages[0].ContentText)
	assert.Equal(t, "reworded question", detail.Title)
}

func TestSettingsAndMemory(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s struct {
		DefaultModel     string `json:"default_model"`
		StreamingEnabled bool   `json:"streaming_enabled"`
		SoundEnabled     bool   `json:"sound_enabled"`
	}
	env.decode(w, &s)
	assert.Equal(t, "gpt-4o-2024-11-20", s.DefaultModel)
	assert.True(t, s.StreamingEnabled)
	assert.False(t, s.SoundEnabled)

	w = env.request(http.MethodPatch, "/api/v1/settings", map[string]interface{}{"default_model": "gpt-5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(http.MethodPut, "/api/v1/memory", map[string]string{"markdown": strings.Repeat("a", 8193)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(http.MethodPut, "/api/v1/memory", map[string]string{"markdown": strings.Repeat("a", 8192)})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(http.MethodGet, "/api/v1/memory", nil)
	var note struct {
		Markdown string `json:"markdown"`
	}
	env.decode(w, &note)
	assert.Len(t, note.Markdown, 8192)
}

func TestAlbum(t *testing.T) {
	env := newTestEnv(t, nil)
	png := []byte("\x89PNG\r\n\x1a\nfake")
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	w := env.request(http.MethodPost, "/api/v1/album", map[string]string{"imageData": "not-an-image"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(http.MethodPost, "/api/v1/album", map[string]string{"imageData": dataURL, "comment": "sunset"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item struct {
		ID       string `json:"id"`
		Comment  string `json:"comment"`
		ImageURL string `json:"image_url"`
	}
	env.decode(w, &item)
	assert.Equal(t, "sunset", item.Comment)
	assert.Equal(t, "/api/v1/album/"+item.ID+"/image", item.ImageURL)

	w = env.request(http.MethodGet, item.ImageURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())

	w = env.request(http.MethodPatch, "/api/v1/album/"+item.ID, map[string]string{"memory_note": "beach trip"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(http.MethodGet, "/api/v1/album", nil)
	var list struct {
		Items []struct {
			MemoryNote string `json:"memory_note"`
		} `json:"items"`
	}
	env.decode(w, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "beach trip", list.Items[0].MemoryNote)

	w = env.request(http.MethodDelete, "/api/v1/album/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.request(http.MethodGet, item.ImageURL, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, nil)
	convID := env.createConversation()
	w := env.request(http.MethodPost, "/api/v1/conversations/"+convID+"/messages", map[string]string{
		"role": "user", "content_text": "hello there",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(http.MethodGet, "/api/v1/export?format=markdown", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(http.MethodGet, "/api/v1/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(http.MethodGet, "/api/v1/export?format=markdown&conversation_id="+convID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")
	assert.Contains(t, w.Body.String(), "### You")
	assert.Contains(t, w.Body.String(), "hello there")

	w = env.request(http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sanctuary-export-")
	assert.Contains(t, w.Body.String(), "hello there")
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(http.MethodGet, "/api/v1/auth/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile struct {
		Email string `json:"email"`
	}
	env.decode(w, &profile)
	assert.Equal(t, testEmail, profile.Email)

	token := env.token
	env.token = ""
	w = env.request(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "stranger@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.request(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": testEmail, "password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.token = token
	w = env.request(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(http.MethodGet, "/api/v1/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.request(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = env.request(http.MethodGet, "/api/v1/system/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info handler.SystemInfo
	env.decode(w, &info)
	assert.Equal(t, "openai", info.Provider)
	assert.Equal(t, catalog.DefaultModelID, info.DefaultModel)
	assert.Equal(t, len(catalog.Models), info.ModelCount)
	assert.Equal(t, "local", info.Storage)
	assert.False(t, info.Redis)
	assert.Zero(t, info.ActiveStreams)
}
