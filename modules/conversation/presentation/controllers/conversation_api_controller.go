package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/modules/conversation/presentation/controllers/dtos"
	"github.com/iota-uz/bothub/modules/conversation/services"
	"github.com/iota-uz/bothub/pkg/application"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/httpapi"
	"github.com/iota-uz/bothub/pkg/mediator"
)

type ConversationAPIControllerConfig struct {
	BasePath    string
	AliasPaths  []string
	Mediator    *mediator.Mediator
	Middlewares []mux.MiddlewareFunc
}

// ConversationAPIController serves read-only conversation history to bot
// participants.
type ConversationAPIController struct {
	basePath    string
	aliasPaths  []string
	mediator    *mediator.Mediator
	middlewares []mux.MiddlewareFunc
}

func NewConversationAPIController(cfg ConversationAPIControllerConfig) application.Controller {
	return &ConversationAPIController{
		basePath:    cfg.BasePath,
		aliasPaths:  cfg.AliasPaths,
		mediator:    cfg.Mediator,
		middlewares: cfg.Middlewares,
	}
}

func (c *ConversationAPIController) Key() string {
	return "ConversationAPIController"
}

func (c *ConversationAPIController) Register(r *mux.Router) {
	c.registerRoutes(r, c.basePath)
	for _, alias := range c.aliasPaths {
		if strings.TrimSpace(alias) == "" || alias == c.basePath {
			continue
		}
		c.registerRoutes(r, alias)
	}
}

func (c *ConversationAPIController) registerRoutes(r *mux.Router, basePath string) {
	router := r.PathPrefix(basePath).Subrouter()
	for _, mw := range c.middlewares {
		router.Use(mw)
	}
	router.HandleFunc("/bots/{bot_uid}/conversations", c.listConversations).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{conversation_uid}", c.getConversation).Methods(http.MethodGet)
}

func (c *ConversationAPIController) listConversations(w http.ResponseWriter, r *http.Request) {
	userUID, ok := requireUser(w, r)
	if !ok {
		return
	}
	botUID, ok := pathUID(w, r, "bot_uid")
	if !ok {
		return
	}
	list, err := mediator.Query[[]conversation.Conversation](r.Context(), c.mediator, services.ListBotConversations{
		UserUID: userUID,
		BotUID:  botUID,
	})
	if err != nil {
		writeServiceError(w, r, err, "failed to list conversations")
		return
	}
	resp := dtos.ConversationList{Conversations: make([]dtos.Conversation, 0, len(list))}
	for _, conv := range list {
		resp.Conversations = append(resp.Conversations, dtos.ToConversation(conv, false))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *ConversationAPIController) getConversation(w http.ResponseWriter, r *http.Request) {
	userUID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conversationUID, ok := pathUID(w, r, "conversation_uid")
	if !ok {
		return
	}
	conv, err := mediator.Query[conversation.Conversation](r.Context(), c.mediator, services.GetConversation{
		UserUID:         userUID,
		ConversationUID: conversationUID,
	})
	if err != nil {
		writeServiceError(w, r, err, "failed to load conversation")
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.ToConversation(conv, true))
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userUID, err := composables.UseUserID(r.Context())
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
		return uuid.Nil, false
	}
	return userUID, true
}

func pathUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	uid, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a uuid", nil)
		return uuid.Nil, false
	}
	return uid, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if httpapi.StatusOf(err) >= http.StatusInternalServerError {
		composables.UseLogger(r.Context()).WithError(err).Error(msg)
	}
	_ = httpapi.WriteServiceError(w, err, nil)
}
