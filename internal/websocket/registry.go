package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"mazequiz/internal/chapter"
	"mazequiz/internal/quiz"
	"mazequiz/internal/ranking"
	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

// Client is one registered connection: the emitter plus the
// per-connection quiz machine and the round session it is playing.
type Client struct {
	id       string
	userID   string
	username string
	emitter  interfaces.Emitter
	quiz     *quiz.Machine

	mu      sync.Mutex
	roundID string
	gone    bool
}

// ID returns the connection-scoped client id.
func (c *Client) ID() string { return c.id }

// UserID returns the owning user.
func (c *Client) UserID() string { return c.userID }

// Username returns the display name supplied at registration.
func (c *Client) Username() string { return c.username }

// Emit forwards to the underlying emitter.
func (c *Client) Emit(event string, payload any) error {
	return c.emitter.Emit(event, payload)
}

func (c *Client) setRound(id string) {
	c.mu.Lock()
	c.roundID = id
	c.mu.Unlock()
}

func (c *Client) takeRound() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.roundID
	c.roundID = ""
	return id
}

// Registry tracks connected clients and dispatches their inbound
// events to the quiz machines, the progression engine and the store.
// A user may hold several simultaneous connections; each gets its own
// client and quiz machine.
type Registry struct {
	store    interfaces.SessionStore
	engine   *chapter.Engine
	rewards  interfaces.RewardDelegate
	renderer interfaces.ExpressionRenderer

	mu          sync.RWMutex
	clients     map[string]*Client
	userClients map[string]map[string]*Client
	ranking     *ranking.Broadcaster
}

// NewRegistry creates an empty registry. The ranking broadcaster is
// bound later because it needs the registry as its recipient pool.
func NewRegistry(store interfaces.SessionStore, engine *chapter.Engine, rewards interfaces.RewardDelegate, renderer interfaces.ExpressionRenderer) *Registry {
	return &Registry{
		store:       store,
		engine:      engine,
		rewards:     rewards,
		renderer:    renderer,
		clients:     make(map[string]*Client),
		userClients: make(map[string]map[string]*Client),
	}
}

// BindRanking attaches the broadcaster. Must be called before the
// first registration.
func (r *Registry) BindRanking(b *ranking.Broadcaster) {
	r.mu.Lock()
	r.ranking = b
	r.mu.Unlock()
}

// Register creates a client for the connection and its quiz machine.
func (r *Registry) Register(userID, username string, emitter interfaces.Emitter) (*Client, error) {
	if emitter == nil {
		return nil, ErrNilConnection
	}
	if !types.IsValidUserID(userID) {
		return nil, types.ErrInvalidUserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client := &Client{
		id:       uuid.New().String(),
		userID:   userID,
		username: username,
		emitter:  emitter,
	}
	client.quiz = quiz.NewMachine(quiz.Config{
		UserID:   userID,
		Emitter:  client,
		Rewards:  r.rewards,
		Renderer: r.renderer,
		Ranking:  r.ranking,
	})

	r.clients[client.id] = client
	if r.userClients[userID] == nil {
		r.userClients[userID] = make(map[string]*Client)
	}
	r.userClients[userID][client.id] = client

	log.Printf("Client registered: id=%s user=%s username=%s", client.id, userID, username)
	return client, nil
}

// OnDisconnect tears a client down exactly once: the quiz machine is
// stopped without payout, an open round session is closed best-effort,
// and the client leaves the lookup maps.
func (r *Registry) OnDisconnect(client *Client) {
	if client == nil {
		return
	}

	client.mu.Lock()
	if client.gone {
		client.mu.Unlock()
		return
	}
	client.gone = true
	client.mu.Unlock()

	client.quiz.Stop()

	if roundID := client.takeRound(); roundID != "" {
		if err := r.store.EndRoundSession(context.Background(), roundID); err != nil {
			log.Printf("Failed to end round %s on disconnect: %v", roundID, err)
		}
	}

	r.mu.Lock()
	delete(r.clients, client.id)
	if peers, ok := r.userClients[client.userID]; ok {
		delete(peers, client.id)
		if len(peers) == 0 {
			delete(r.userClients, client.userID)
		}
	}
	r.mu.Unlock()

	log.Printf("Client deregistered: id=%s user=%s", client.id, client.userID)
}

// GetClient returns a client by connection id.
func (r *Registry) GetClient(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[connID]
	return client, ok
}

// Recipients returns every connected client for ranking pushes.
func (r *Registry) Recipients() []ranking.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipients := make([]ranking.Recipient, 0, len(r.clients))
	for _, client := range r.clients {
		recipients = append(recipients, client)
	}
	return recipients
}

// BroadcastToUser sends an event to every connection a user holds.
func (r *Registry) BroadcastToUser(userID, event string, payload any) {
	r.mu.RLock()
	peers := make([]*Client, 0, len(r.userClients[userID]))
	for _, client := range r.userClients[userID] {
		peers = append(peers, client)
	}
	r.mu.RUnlock()

	for _, client := range peers {
		if err := client.Emit(event, payload); err != nil {
			log.Printf("Broadcast of %s to %s failed: %v", event, client.id, err)
		}
	}
}

// BroadcastAll sends an event to every live connection.
func (r *Registry) BroadcastAll(event string, payload any) {
	r.mu.RLock()
	all := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		all = append(all, client)
	}
	r.mu.RUnlock()

	for _, client := range all {
		if err := client.Emit(event, payload); err != nil {
			log.Printf("Broadcast of %s to %s failed: %v", event, client.id, err)
		}
	}
}

// Stats reports registry counters for the monitoring endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.clients),
		"connected_users":   len(r.userClients),
	}
}

// Dispatch routes one validated envelope from a connection to the
// component that owns its event.
func (r *Registry) Dispatch(ctx context.Context, connID string, env *types.Envelope) error {
	client, ok := r.GetClient(connID)
	if !ok {
		return ErrClientNotFound
	}

	switch env.Event {
	case types.EventStartQuiz:
		client.quiz.Start(ctx)
		return nil

	case types.EventAnswerQuiz:
		var payload types.AnswerQuizPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			client.notifyError("Invalid answer payload")
			return nil
		}
		client.quiz.SubmitAnswer(ctx, payload.Value)
		return nil

	case types.EventStartChapter:
		return r.handleStartChapter(ctx, client, env.Payload)

	case types.EventStartRound:
		return r.handleStartRound(ctx, client, env.Payload)

	case types.EventStartMazeMove:
		return r.handleMove(ctx, client, env.Payload)

	default:
		client.notifyError("Unknown event: " + env.Event)
		return nil
	}
}

func (r *Registry) handleStartChapter(ctx context.Context, client *Client, raw json.RawMessage) error {
	var payload types.StartChapterPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.emitOrLog(types.EventStartChapterFail, types.NotifyPayload{Type: types.NotifyError, Message: "Invalid chapter payload"})
		return nil
	}

	session, err := r.engine.StartChapterSession(ctx, client.userID, payload.ChapterLevel)
	if err != nil {
		client.emitOrLog(types.EventStartChapterFail, types.NotifyPayload{Type: types.NotifyError, Message: userMessage(err)})
		return nil
	}

	client.emitOrLog(types.EventStartChapterSuccess, session)
	return nil
}

func (r *Registry) handleStartRound(ctx context.Context, client *Client, raw json.RawMessage) error {
	var payload types.StartRoundPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.emitOrLog(types.EventStartRoundFail, types.NotifyPayload{Type: types.NotifyError, Message: "Invalid round payload"})
		return nil
	}

	round, err := r.engine.CreateRoundSession(ctx, payload.ChapterSessionID, payload.Round, client.userID)
	if err != nil {
		client.emitOrLog(types.EventStartRoundFail, types.NotifyPayload{Type: types.NotifyError, Message: userMessage(err)})
		return nil
	}

	client.setRound(round.ID)
	client.emitOrLog(types.EventStartRoundSuccess, round)
	return nil
}

func (r *Registry) handleMove(ctx context.Context, client *Client, raw json.RawMessage) error {
	var payload types.MovePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.emitOrLog(types.EventMoveFail, types.NotifyPayload{Type: types.NotifyError, Message: "Invalid move payload"})
		return nil
	}

	round, err := r.store.RecordMove(ctx, payload.SessionID, client.userID, payload.Move)
	if err != nil {
		client.emitOrLog(types.EventMoveFail, types.NotifyPayload{Type: types.NotifyError, Message: userMessage(err)})
		return nil
	}

	// Every connection the user holds sees the move, so a second tab
	// stays in sync with the maze state.
	r.BroadcastToUser(client.userID, types.EventMoveSuccess, round)
	return nil
}

// userMessage maps domain errors to client-safe text. Unexpected
// errors are replaced with a generic message.
func userMessage(err error) string {
	switch {
	case errors.Is(err, chapter.ErrChapterNotUnlocked),
		errors.Is(err, chapter.ErrChapterAlreadyInProgress),
		errors.Is(err, chapter.ErrRoundOutOfSequence),
		errors.Is(err, chapter.ErrAccessDenied):
		return err.Error()
	case errors.Is(err, interfaces.ErrChapterNotFound):
		return "chapter not found"
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, interfaces.ErrRoundNotFound):
		return "round not found"
	default:
		return "something went wrong, please try again"
	}
}

func (c *Client) notifyError(message string) {
	c.emitOrLog(types.EventNotify, types.NotifyPayload{Type: types.NotifyError, Message: message})
}

func (c *Client) emitOrLog(event string, payload any) {
	if err := c.Emit(event, payload); err != nil {
		log.Printf("Failed to emit %s to client %s: %v", event, c.id, err)
	}
}
