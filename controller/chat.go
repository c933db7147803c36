package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"streamchat/model"
	"streamchat/platform"
	"streamchat/service"
	"streamchat/store"
)

type ChatController struct {
	Chats        *store.ChatStore
	Messages     *store.MessageStore
	Orchestrator *service.Orchestrator
	Catalog      model.Catalog
	DefaultModel string
	Logger       *logrus.Logger
}

func (ch *ChatController) Create(c *gin.Context) {
	identity := callerIdentity(c)

	var input struct {
		Title              string   `json:"title"`
		Model              string   `json:"model"`
		Mode               string   `json:"mode"`
		Verbosity          *int     `json:"verbosity"`
		CustomInstructions string   `json:"custom_instructions"`
		EnabledTools       []string `json:"enabled_tools"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		ch.Logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	modelID := input.Model
	if modelID == "" {
		modelID = ch.DefaultModel
	}
	if _, ok := ch.Catalog.Resolve(modelID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown model"})
		return
	}

	key, err := platform.NewChatKey()
	if err != nil {
		ch.Logger.Errorf("[%s] Failed to generate chat key: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create chat"})
		return
	}

	chat := &model.Chat{
		ID:                 uuid.New().String(),
		UserID:             identity.UserID,
		Title:              input.Title,
		Model:              modelID,
		Mode:               model.ModeChat,
		Verbosity:          50,
		CustomInstructions: input.CustomInstructions,
		EnabledTools:       strings.Join(input.EnabledTools, ","),
		DataKey:            key,
	}
	if input.Mode != "" {
		chat.Mode = input.Mode
	}
	if input.Verbosity != nil {
		chat.Verbosity = *input.Verbosity
	}
	if err := ch.Chats.Create(chat); err != nil {
		ch.Logger.Warnf("[%s] Failed to create chat: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create chat"})
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (ch *ChatController) List(c *gin.Context) {
	identity := callerIdentity(c)
	chats, err := ch.Chats.ListByUser(identity.UserID)
	if err != nil {
		ch.Logger.Warnf("[%s] Failed to list chats: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (ch *ChatController) ListMessages(c *gin.Context) {
	chat, ok := ch.ownedChat(c)
	if !ok {
		return
	}
	key, err := ch.Chats.ContentKey(chat)
	if err != nil {
		ch.Logger.Errorf("[%s] Bad content key for chat %s: %s", c.GetString("requestId"), chat.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	msgs, err := ch.Messages.ListByChat(chat.ID, key)
	if err != nil {
		ch.Logger.Warnf("[%s] Failed to list messages: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Generate runs one assistant turn and relays the generation's event stream
// over SSE.
func (ch *ChatController) Generate(c *gin.Context) {
	identity := callerIdentity(c)
	chat, ok := ch.ownedChat(c)
	if !ok {
		return
	}

	var input struct {
		Prompt          string `json:"prompt" binding:"required"`
		ReasoningEffort string `json:"reasoning_effort"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		ch.Logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	spec, okSpec := ch.Catalog.Resolve(chat.Model)
	if !okSpec {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chat references an unknown model"})
		return
	}

	// Reject before persisting the user message or committing to SSE, so a
	// conflicting request can retry without duplicating its prompt.
	active, err := ch.Orchestrator.Active(chat.ID)
	if err != nil {
		ch.Logger.Warnf("[%s] Failed to check in-flight generation: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start generation"})
		return
	}
	if active {
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrGenerationInFlight.Error()})
		return
	}

	key, err := ch.Chats.ContentKey(chat)
	if err != nil {
		ch.Logger.Errorf("[%s] Bad content key for chat %s: %s", c.GetString("requestId"), chat.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start generation"})
		return
	}

	history, err := ch.Messages.ListByChat(chat.ID, key)
	if err != nil {
		ch.Logger.Warnf("[%s] Failed to load history: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start generation"})
		return
	}

	userMsg := &model.Message{
		ID:     uuid.New().String(),
		ChatID: chat.ID,
		Role:   model.RoleUserMsg,
		Parts:  []model.ContentPart{{Type: model.PartText, Text: input.Prompt}},
	}
	if err := ch.Messages.Create(userMsg, key); err != nil {
		ch.Logger.Warnf("[%s] Failed to persist user message: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start generation"})
		return
	}

	turns := historyTurns(history)
	turns = append(turns, service.ChatTurn{Role: model.RoleUserMsg, Text: input.Prompt})

	flusher, okFlush := c.Writer.(http.Flusher)
	if !okFlush {
		ch.Logger.Warnf("[%s] get Writer flusher error", c.GetString("requestId"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	sink := &sseSink{w: c.Writer, flusher: flusher}

	// Detached from the request context: a caller disconnect must not cancel
	// the final ledger checkpoint. The orchestrator applies its own overall
	// time limit.
	_, err = ch.Orchestrator.Generate(context.Background(), service.GenerateInput{
		Chat:            chat,
		ChatKey:         key,
		Spec:            spec,
		Identity:        identity,
		ReasoningEffort: input.ReasoningEffort,
		History:         turns,
		Sink:            sink,
	})
	if errors.Is(err, service.ErrGenerationInFlight) {
		// Lost the gate to a request that slipped in after the pre-check; the
		// response is already an event stream, so report it there.
		_ = sink.Send(service.StreamEvent{Kind: service.EventError, Error: err.Error()})
		return
	}
	if err != nil {
		// The terminal error event has already been relayed on the stream.
		ch.Logger.Warnf("[%s] generation failed for chat %s: %s", c.GetString("requestId"), chat.ID, err)
	}
}

func (ch *ChatController) ownedChat(c *gin.Context) (*model.Chat, bool) {
	identity := callerIdentity(c)
	chat, err := ch.Chats.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
		return nil, false
	}
	if chat.UserID != identity.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
		return nil, false
	}
	return chat, true
}

func callerIdentity(c *gin.Context) model.Identity {
	if v, ok := c.Get("identity"); ok {
		if id, ok := v.(model.Identity); ok {
			return id
		}
	}
	return model.Identity{}
}

// historyTurns flattens stored messages into plain text turns for the model:
// concatenated text parts, other part kinds skipped.
func historyTurns(msgs []model.Message) []service.ChatTurn {
	turns := make([]service.ChatTurn, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != model.RoleUserMsg && msg.Role != model.RoleAssistant {
			continue
		}
		var text strings.Builder
		for _, part := range msg.Parts {
			if part.Type == model.PartText {
				text.WriteString(part.Text)
			}
		}
		if text.Len() == 0 {
			continue
		}
		turns = append(turns, service.ChatTurn{Role: msg.Role, Text: text.String()})
	}
	return turns
}

// sseSink writes stream events as SSE frames and reports write failures so
// the orchestrator notices a gone caller.
type sseSink struct {
	w       gin.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(ev service.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
