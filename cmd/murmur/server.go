package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"murmur/internal/apperr"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/presence"
	"murmur/internal/service"
	"murmur/internal/store"
	"murmur/internal/typing"
	"murmur/pkg/media"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// session is the server-side stand-in for one user's client: their lifecycle
// manager and typing debouncer.
type session struct {
	lifecycle *service.Lifecycle
	typing    *typing.Coordinator
}

type server struct {
	cfg         *models.Config
	db          *store.Store
	tracker     *presence.Tracker
	scheduler   *service.ExpiryScheduler
	objectStore *media.LocalObjectStore
	logger      *logrus.Logger

	mu        sync.Mutex
	sessions  map[string]*session
	openCount map[string]int
	viewCount map[string]int

	hub        *eventHub
	typingView *typing.Set
}

func newServer(cfg *models.Config, db *store.Store, tracker *presence.Tracker, scheduler *service.ExpiryScheduler, objectStore *media.LocalObjectStore, logger *logrus.Logger) *server {
	s := &server{
		cfg:         cfg,
		db:          db,
		tracker:     tracker,
		scheduler:   scheduler,
		objectStore: objectStore,
		logger:      logger,
		sessions:    make(map[string]*session),
		openCount:   make(map[string]int),
		viewCount:   make(map[string]int),
		hub:         newEventHub(),
		typingView:  typing.NewSet(time.Duration(cfg.Typing.GraceMs) * time.Millisecond),
	}
	s.hub.observe = s.typingView.Observe
	return s
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Observability(s.logger))

	api := r.PathPrefix("/api/v1/users/{user}").Subrouter()
	api.HandleFunc("/conversations/{peer}/messages", s.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{peer}/messages", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{peer}/read", s.handleMarkRead).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{peer}/typing", s.handleTyping).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{peer}/typing", s.handleTypingUsers).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{peer}/settings", s.handleSaveSettings).Methods(http.MethodPut)
	api.HandleFunc("/conversations/{peer}/unlock", s.handleUnlock).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{peer}/voice", s.handleVoice).Methods(http.MethodPost)
	api.HandleFunc("/visibility", s.handleVisibility).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", s.handleEdit).Methods(http.MethodPatch)
	api.HandleFunc("/messages/{id}", s.handleDelete).Methods(http.MethodDelete)

	r.HandleFunc("/ws", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/media/{key}", s.handleMedia).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	return r
}

// session returns (creating on first use) the server-side client state for a
// user.
func (s *server) session(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess
	}

	sess := &session{
		lifecycle: service.NewLifecycle(userID, s.db, &logNotifier{logger: s.logger, userID: userID}, s.logger),
		typing: typing.NewCoordinator(userID, s.hub,
			time.Duration(s.cfg.Typing.DebounceMs)*time.Millisecond, s.logger),
	}
	s.sessions[userID] = sess
	return sess
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, peerID := vars["user"], vars["peer"]

	var draft models.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if draft.Type == "" {
		draft.Type = models.TextMessage
	}

	msg, err := s.session(userID).lifecycle.Send(r.Context(), peerID, draft)
	if err != nil {
		if apperr.Is(err, apperr.CodeDuplicateSuppressed) {
			// Silent no-op for the double tap.
			w.WriteHeader(http.StatusAccepted)
			return
		}
		s.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, peerID := vars["user"], vars["peer"]

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}

	key := models.ConversationKey(userID, peerID)
	messages, err := s.db.QueryMessages(r.Context(), key, since)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.session(vars["user"]).lifecycle.MarkRead(r.Context(), vars["peer"]); err != nil {
		s.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleTyping(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, peerID := vars["user"], vars["peer"]

	var body struct {
		Typing bool `json:"typing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := models.ConversationKey(userID, peerID)
	s.session(userID).typing.SetTyping(key, body.Typing)
	w.WriteHeader(http.StatusNoContent)
}

// handleTypingUsers reports who is currently typing in the conversation from
// the requesting user's point of view. Entries expire on their own, so a lost
// stop event clears within the grace window.
func (s *server) handleTypingUsers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, peerID := vars["user"], vars["peer"]

	key := models.ConversationKey(userID, peerID)
	typingUsers := make([]string, 0, 1)
	for _, id := range s.typingView.TypingUsers(key) {
		if id != userID {
			typingUsers = append(typingUsers, id)
		}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"typingUsers": typingUsers})
}

// handleVisibility flips the app-backgrounded flag for a user; incoming
// messages raise notifications only while backgrounded.
func (s *server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var body struct {
		Backgrounded bool `json:"backgrounded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.session(vars["user"]).lifecycle.SetBackgrounded(body.Backgrounded)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, peerID := vars["user"], vars["peer"]

	var body struct {
		IsLocked                  bool   `json:"isLocked"`
		Pin                       string `json:"pin"`
		TemporaryMessagesDuration string `json:"temporaryMessagesDuration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	duration := models.TemporaryDuration(body.TemporaryMessagesDuration)
	if body.TemporaryMessagesDuration == "" {
		duration = models.TemporaryDisabled
	}
	if !duration.Valid() {
		writeError(w, http.StatusBadRequest, "unknown temporary messages duration")
		return
	}

	settings := &models.ChatSettings{
		OwnerID:           userID,
		PartnerID:         peerID,
		IsLocked:          body.IsLocked,
		TemporaryDuration: duration,
	}
	if body.Pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(body.Pin), bcrypt.DefaultCost)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		settings.PinHash = string(hash)
	}

	if err := s.db.SaveChatSettings(r.Context(), settings); err != nil {
		s.writeAppError(w, err)
		return
	}

	s.scheduler.Configure(models.ConversationKey(userID, peerID), duration)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, peerID := vars["user"], vars["peer"]

	var body struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.session(userID).lifecycle.Unlock(r.Context(), peerID, body.Pin); err != nil {
		s.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVoice accepts a finished voice capture: the encoded bytes in the body,
// the container type in Content-Type and the measured duration as a query
// parameter. The blob is stored under a collision-resistant key and sent as an
// audio message.
func (s *server) handleVoice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, peerID := vars["user"], vars["peer"]

	durationSec, err := parseDuration(r.URL.Query().Get("durationSeconds"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid durationSeconds")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.cfg.Media.MaxSizeMB.Voice)*1024*1024+1))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "voice message too large")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty voice message")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/ogg"
	}

	key := fmt.Sprintf("%d-%s.ogg", time.Now().Unix(), uuid.NewString())
	url, err := s.objectStore.Put(r.Context(), key, data, contentType)
	if err != nil {
		s.writeAppError(w, apperr.Wrap(err, apperr.CodeUploadFailed, "failed to store voice message"))
		return
	}

	msg, err := s.session(userID).lifecycle.Send(r.Context(), peerID, models.Draft{
		Type:            models.AudioMessage,
		MediaURL:        url,
		DurationSeconds: durationSec,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (s *server) handleEdit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.session(vars["user"]).lifecycle.Edit(r.Context(), vars["id"], body.Content); err != nil {
		s.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.session(vars["user"]).lifecycle.Delete(r.Context(), vars["id"]); err != nil {
		s.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents is the client event socket: one connection per open
// conversation view. It opens the lifecycle view, announces presence
// heartbeats for the connected user and multiplexes message change events,
// typing events and peer presence onto a single envelope stream.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	peerID := r.URL.Query().Get("peer")
	if userID == "" || peerID == "" {
		writeError(w, http.StatusBadRequest, "user and peer are required")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := s.session(userID)
	key := models.ConversationKey(userID, peerID)

	if _, err := sess.lifecycle.Open(ctx, peerID); err != nil {
		status := websocket.StatusPolicyViolation
		conn.Close(status, apperr.GetUserMessage(err))
		return
	}
	s.viewOpened(userID, peerID)
	defer s.viewClosed(sess, userID, peerID)

	s.conversationOpened(ctx, userID, peerID, key)
	defer s.conversationClosed(key)

	go s.tracker.Run(ctx, userID)

	events, cancelEvents := s.db.Subscribe(key)
	defer cancelEvents()

	hubCh, cancelHub := s.hub.subscribe(key, userID)
	defer cancelHub()

	presenceCh := s.tracker.Watch(ctx, peerID)

	for {
		var envelope models.Envelope
		var err error

		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			envelope, err = models.NewEnvelope(models.EnvelopeMessage, ev)
		case ev, ok := <-hubCh:
			if !ok {
				return
			}
			envelope = ev
		case state, ok := <-presenceCh:
			if !ok {
				return
			}
			envelope, err = models.NewEnvelope(models.EnvelopePresence, state)
		}
		if err != nil {
			s.logger.WithError(err).Warn("Failed to build event envelope")
			continue
		}

		writeCtx, cancelWrite := context.WithTimeout(ctx, 10*time.Second)
		err = wsjson.Write(writeCtx, conn, envelope)
		cancelWrite()
		if err != nil {
			return
		}
	}
}

// viewOpened records one event socket viewing a conversation for a user.
// Lifecycle state is shared across a user's sockets for the same peer, so it
// is torn down only when the last one disconnects.
func (s *server) viewOpened(userID, peerID string) {
	s.mu.Lock()
	s.viewCount[userID+"|"+peerID]++
	s.mu.Unlock()
}

func (s *server) viewClosed(sess *session, userID, peerID string) {
	viewKey := userID + "|" + peerID

	s.mu.Lock()
	s.viewCount[viewKey]--
	last := s.viewCount[viewKey] <= 0
	if last {
		delete(s.viewCount, viewKey)
	}
	s.mu.Unlock()

	if last {
		sess.lifecycle.Close(peerID)
	}
}

// conversationOpened arms the expiry scheduler for the conversation on first
// open, configured from the opener's settings.
func (s *server) conversationOpened(ctx context.Context, userID, peerID, key string) {
	settings, err := s.db.GetChatSettings(ctx, userID, peerID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load settings for expiry scheduler")
	} else {
		s.scheduler.Configure(key, settings.TemporaryDuration)
	}

	s.mu.Lock()
	s.openCount[key]++
	first := s.openCount[key] == 1
	s.mu.Unlock()

	if first {
		// The sweep loop outlives this connection; it stops when the last
		// viewer of the conversation disconnects.
		s.scheduler.Start(context.Background(), key)
	}
}

func (s *server) conversationClosed(key string) {
	s.mu.Lock()
	s.openCount[key]--
	last := s.openCount[key] == 0
	if last {
		delete(s.openCount, key)
	}
	s.mu.Unlock()

	if last {
		s.scheduler.Stop(key)
	}
}

func (s *server) handleMedia(w http.ResponseWriter, r *http.Request) {
	data, err := s.objectStore.Get(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(data); err != nil {
		s.logger.WithError(err).Debug("Failed to write media response")
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *server) writeAppError(w http.ResponseWriter, err error) {
	code := apperr.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeValidationFailed:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeNotPermitted, apperr.CodeChatLocked, apperr.CodePermissionDenied:
		status = http.StatusForbidden
	case apperr.CodeUploadFailed, apperr.CodePersistenceFailure:
		status = http.StatusBadGateway
	}

	s.logger.WithError(err).WithField("code", code).Warn("Request failed")
	writeJSON(w, status, map[string]string{
		"code":  string(code),
		"error": apperr.GetUserMessage(err),
	})
}

// logNotifier stands in for the platform notification service: incoming
// messages for a backgrounded user are logged and counted.
type logNotifier struct {
	logger *logrus.Logger
	userID string
}

func (n *logNotifier) ShowNotification(title, body, icon string) {
	n.logger.WithFields(logrus.Fields{
		"user":  n.userID,
		"title": title,
		"body":  body,
	}).Info("Notification")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		logrus.WithError(err).Debug("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseDuration(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	var v float64
	if _, err := fmt.Sscanf(raw, "%g", &v); err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	return v, nil
}
