package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/playground/domain/session"
	"github.com/iota-uz/bothub/modules/playground/services"
	"github.com/iota-uz/bothub/pkg/application"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/httpapi"
	"github.com/iota-uz/bothub/pkg/serrors"
)

const (
	FrameReply = "reply"
	FrameError = "error"

	writeTimeout = 10 * time.Second
)

// Frame is what the server writes on a playground socket.
type Frame struct {
	Type                string `json:"type"`
	ConversationUID     string `json:"conversation_uid,omitempty"`
	Content             string `json:"content,omitempty"`
	AIResponseGenerated bool   `json:"ai_response_generated,omitempty"`
	Code                string `json:"code,omitempty"`
	Message             string `json:"message,omitempty"`
}

type PlaygroundControllerConfig struct {
	BasePath       string
	Service        *services.PlaygroundService
	Upgrader       *websocket.Upgrader
	MaxMessageSize int64
	ReadTimeout    time.Duration
}

type PlaygroundController struct {
	basePath       string
	service        *services.PlaygroundService
	upgrader       *websocket.Upgrader
	maxMessageSize int64
	readTimeout    time.Duration
}

func NewPlaygroundController(cfg PlaygroundControllerConfig) application.Controller {
	if cfg.Upgrader == nil {
		cfg.Upgrader = application.NewUpgrader(application.UpgraderOptions{})
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Minute
	}
	return &PlaygroundController{
		basePath:       cfg.BasePath,
		service:        cfg.Service,
		upgrader:       cfg.Upgrader,
		maxMessageSize: cfg.MaxMessageSize,
		readTimeout:    cfg.ReadTimeout,
	}
}

func (c *PlaygroundController) Key() string {
	return "PlaygroundController"
}

func (c *PlaygroundController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/bots/{bot_uid}/ws", c.Socket).Methods(http.MethodGet)
}

func (c *PlaygroundController) Socket(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())
	botUID, err := uuid.Parse(mux.Vars(r)["bot_uid"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_BOT_UID", "bot uid must be a uuid", nil)
		return
	}
	userUID, err := composables.UseUserID(r.Context())
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		logger.WithError(err).Warn("playground upgrade failed")
		return
	}
	defer conn.Close()

	logger = logger.WithFields(logrus.Fields{"bot_uid": botUID, "user_uid": userUID})
	ctx := composables.WithLogger(r.Context(), logger)

	sess, err := c.service.Open(ctx, userUID, botUID)
	if err != nil {
		logger.WithError(err).Info("playground handshake rejected")
		closeSocket(conn, session.ClosePolicyViolation, serrors.CodeOf(err))
		return
	}
	code := c.serve(ctx, conn, sess, logger)
	c.service.Close(sess, code)
	closeSocket(conn, code, "")
}

// serve reads frames until the peer leaves or the loop fails and returns the
// close code to send.
func (c *PlaygroundController) serve(
	ctx context.Context,
	conn *websocket.Conn,
	sess *session.Session,
	logger *logrus.Entry,
) int {
	if c.maxMessageSize > 0 {
		conn.SetReadLimit(c.maxMessageSize)
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return session.CloseNormal
			}
			logger.WithError(err).Warn("playground receive failed")
			_ = writeFrame(conn, Frame{Type: FrameError, Code: "RECEIVE_ERROR", Message: "failed to receive message"})
			return session.CloseNormal
		}
		if kind != websocket.TextMessage {
			if err := writeFrame(conn, Frame{Type: FrameError, Code: "INVALID_FRAME", Message: "only text frames are accepted"}); err != nil {
				return session.CloseInternalError
			}
			continue
		}

		res, err := c.service.Send(ctx, sess, string(data))
		var (
			frame Frame
			be    *serrors.BaseError
		)
		switch {
		case err == nil:
			frame = Frame{
				Type:                FrameReply,
				ConversationUID:     res.ConversationUID.String(),
				Content:             res.Reply(),
				AIResponseGenerated: res.AIResponseGenerated,
			}
		case errors.As(err, &be) && !errors.Is(err, serrors.ErrProcessing):
			// Domain errors leave the socket open so the user can retry.
			frame = Frame{Type: FrameError, Code: be.Code, Message: be.Message}
		default:
			logger.WithError(err).Error("playground message failed")
			_ = writeFrame(conn, Frame{Type: FrameError, Code: serrors.ErrProcessing.Code, Message: serrors.ErrProcessing.Message})
			return session.CloseInternalError
		}
		if err := writeFrame(conn, frame); err != nil {
			logger.WithError(err).Warn("playground send failed")
			return session.CloseInternalError
		}
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
