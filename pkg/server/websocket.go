package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/nstogner/agentcore/pkg/agent"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/store"
)

// Client message types.
const (
	MessageInitAgent = "init_agent"
	MessageQuery     = "query"
	MessageCancel    = "cancel"
	MessageEditQuery = "edit_query"
	MessagePing      = "ping"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	outboxSize   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is a message received over the websocket.
type ClientMessage struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// InitAgentContent resumes an existing session when SessionID is set.
type InitAgentContent struct {
	SessionID string `json:"session_id,omitempty"`
}

type QueryContent struct {
	Text   string   `json:"text"`
	Resume bool     `json:"resume"`
	Files  []string `json:"files,omitempty"`
}

// conn is one websocket client. All writes go through out, drained by a
// single writer goroutine.
type conn struct {
	s      *Server
	ws     *websocket.Conn
	ctx    context.Context
	group  *errgroup.Group
	out    chan events.Event
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string
	agent     *agent.Agent
	sink      events.Sink
	// done is closed when the current query finishes.
	done chan struct{}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	c := &conn{
		s:      s,
		ws:     ws,
		ctx:    gctx,
		group:  g,
		out:    make(chan events.Event, outboxSize),
		logger: s.logger.With("remote", r.RemoteAddr),
	}
	c.send(events.TypeConnectionEstablished, map[string]any{events.KeyMessage: "Connected to agent websocket server"})

	g.Go(c.writeLoop)
	g.Go(func() error {
		defer cancel()
		return c.readLoop()
	})

	if err := g.Wait(); err != nil {
		c.logger.Warn("WebSocket connection ended", "error", err)
	}
	c.close()
}

// Record implements events.Sink for the agent's events. Events are dropped
// once the connection is gone.
func (c *conn) Record(_ context.Context, e events.Event) {
	select {
	case c.out <- e:
	case <-c.ctx.Done():
	}
}

func (c *conn) send(t events.Type, content map[string]any) {
	c.Record(c.ctx, events.New(t, content))
}

func (c *conn) sendError(msg string) {
	c.send(events.TypeError, map[string]any{events.KeyMessage: msg})
}

// writeLoop pushes events to the client.
func (c *conn) writeLoop() error {
	defer c.ws.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case e := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(e); err != nil {
				return fmt.Errorf("writing event: %w", err)
			}
		case <-ticker.C:
			// Keepalive
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("writing ping: %w", err)
			}
		}
	}
}

// readLoop receives client messages until the connection closes.
func (c *conn) readLoop() error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || c.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("Invalid JSON")
			continue
		}
		c.logger.Debug("WebSocket message received", "type", msg.Type)
		c.handle(msg)
	}
}

func (c *conn) handle(msg ClientMessage) {
	switch msg.Type {
	case MessagePing:
		c.send(events.TypePong, nil)

	case MessageInitAgent:
		var content InitAgentContent
		if !c.decode(msg, &content) {
			return
		}
		if err := c.initAgent(content); err != nil {
			c.logger.Error("Failed to initialize agent", "error", err)
			c.sendError("Failed to initialize agent: " + err.Error())
		}

	case MessageQuery:
		var content QueryContent
		if !c.decode(msg, &content) {
			return
		}
		a := c.currentAgent()
		if a == nil {
			c.sendError("Agent not initialized")
			return
		}
		if c.busy() {
			c.sendError("A query is already being processed")
			return
		}
		c.startQuery(a, content.Text, content.Files, content.Resume)

	case MessageEditQuery:
		var content QueryContent
		if !c.decode(msg, &content) {
			return
		}
		a := c.currentAgent()
		if a == nil {
			c.sendError("Agent not initialized")
			return
		}
		c.cancelAndWait(a)
		a.History().ClearFromLastUserMessage()
		c.startQuery(a, content.Text, content.Files, true)

	case MessageCancel:
		a := c.currentAgent()
		if a == nil {
			c.sendError("Agent not initialized")
			return
		}
		a.Cancel()
		c.send(events.TypeSystem, map[string]any{events.KeyMessage: "Query canceled"})

	default:
		c.sendError("Unknown message type: " + msg.Type)
	}
}

func (c *conn) decode(msg ClientMessage, v any) bool {
	if len(msg.Content) == 0 || string(msg.Content) == "null" {
		return true
	}
	if err := json.Unmarshal(msg.Content, v); err != nil {
		c.sendError(fmt.Sprintf("Invalid content for %s: %v", msg.Type, err))
		return false
	}
	return true
}

func (c *conn) currentAgent() *agent.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agent
}

// initAgent creates a session, or reopens content.SessionID, and builds its
// agent.
func (c *conn) initAgent(content InitAgentContent) error {
	if c.busy() {
		return errors.New("a query is still running")
	}
	if c.currentAgent() != nil {
		c.logger.Warn("Agent already initialized, re-initializing")
	}

	ctx := c.ctx
	st := c.s.store
	sessionID := content.SessionID
	if sessionID == "" {
		sess := &store.Session{}
		if err := st.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		sessionID = sess.ID
	} else if _, err := st.GetSession(ctx, sessionID); err != nil {
		return err
	}

	sink := events.NewFanout(c.logger, c, &events.Recorder{Saver: st, SessionID: sessionID, Logger: c.logger})
	a, err := c.s.factory(ctx, sessionID, sink)
	if err != nil {
		return err
	}
	if content.SessionID != "" {
		h, err := st.LoadHistory(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		a.SetHistory(h)
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.agent = a
	c.sink = sink
	c.mu.Unlock()

	c.logger.Info("Agent initialized", "sessionID", sessionID, "resumed", content.SessionID != "")
	c.send(events.TypeAgentInitialized, map[string]any{
		events.KeyMessage:   "Agent initialized",
		events.KeySessionID: sessionID,
	})
	return nil
}

// busy reports whether a query started on this connection is still running.
func (c *conn) busy() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// startQuery runs the agent in its own goroutine and checkpoints the
// history when it finishes.
func (c *conn) startQuery(a *agent.Agent, text string, files []string, resume bool) {
	c.mu.Lock()
	sessionID, sink := c.sessionID, c.sink
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	sink.Record(c.ctx, events.New(events.TypeUserMessage, map[string]any{events.KeyText: text}))

	c.group.Go(func() error {
		defer close(done)
		if _, err := a.RunAgent(c.ctx, text, files, resume); err != nil {
			// The agent already reported the failure as an error event.
			c.logger.Warn("Agent run failed", "sessionID", sessionID, "error", err)
		}
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), writeWait)
		defer cancel()
		if err := c.s.store.SaveHistory(saveCtx, sessionID, a.History()); err != nil {
			c.logger.Error("Failed to save history", "sessionID", sessionID, "error", err)
		}
		return nil
	})
}

// cancelAndWait interrupts the running query, if any, and waits for it to
// finish.
func (c *conn) cancelAndWait(a *agent.Agent) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return
	}
	a.Cancel()
	select {
	case <-done:
	case <-c.ctx.Done():
	}
}

func (c *conn) close() {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.s.store.SetSessionStatus(ctx, sessionID, store.SessionStatusClosed); err != nil {
		c.logger.Warn("Failed to close session", "sessionID", sessionID, "error", err)
	}
}
