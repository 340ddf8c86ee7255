package echoapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/portal"
	"github.com/trezcool/foundi/core/user"
	"github.com/trezcool/foundi/services/pubsub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512
)

type feed struct {
	conf     *core.Config
	logger   core.Logger
	usrSvc   user.Service
	chatSvc  *chat.Service
	broker   pubsub.Broker
	upgrader websocket.Upgrader
}

func registerFeed(g *echo.Group, deps ServerDeps) {
	f := &feed{
		conf:    deps.Conf,
		logger:  deps.Logger,
		usrSvc:  deps.UserSvc,
		chatSvc: deps.ChatSvc,
		broker:  deps.Broker,
	}
	f.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     f.checkOrigin,
	}
	g.GET("/feed", f.serve)
}

// checkOrigin accepts same host requests, the frontend and non browser clients.
func (f *feed) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == f.conf.FrontendBaseURL {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// token reads the session from the query string, the session cookie or the Authorization header.
func (f *feed) token(ctx echo.Context) string {
	if tok := ctx.QueryParam("token"); tok != "" {
		return tok
	}
	if cookie, err := ctx.Cookie(portal.SessionCookieKey); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimPrefix(ctx.Request().Header.Get(echo.HeaderAuthorization), authScheme+" ")
}

func (f *feed) serve(ctx echo.Context) error {
	claims, err := parseToken(f.token(ctx), f.conf.SecretKey)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, f.usrSvc, *claims)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !usr.IsActive() {
		return errAccountPending
	}

	reqCtx := ctx.Request().Context()
	topic, err := f.chatSvc.Topic(reqCtx, usr, ctx.QueryParam("topic"), ctx.QueryParam("with"))
	if err != nil {
		return errors.Wrap(err, "resolving topic")
	}

	// subscribe first: nothing written after the snapshot read can be missed
	sub, err := f.broker.Subscribe(reqCtx, topic)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}
	defer sub.Close()

	snapshot, err := f.chatSvc.Snapshot(reqCtx, usr, topic)
	if err != nil {
		return errors.Wrap(err, "reading snapshot")
	}

	conn, err := f.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already replied
		f.logger.Warn("feed upgrade failed", err)
		return nil
	}
	defer conn.Close()

	view := chat.NewView(snapshot)
	pending := true
	for pending {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			view.Apply(ev)
		default:
			pending = false
		}
	}

	if err = f.write(conn, chat.Event{Type: chat.EventSnapshot, Topic: topic, Messages: view.Messages()}); err != nil {
		return nil
	}
	f.pump(conn, sub)
	return nil
}

func (f *feed) write(conn *websocket.Conn, ev chat.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

// pump relays the subscription to the peer until either side goes away.
// It is the only writer of conn.
func (f *feed) pump(conn *websocket.Conn, sub *pubsub.Subscription) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// broker closed or subscriber dropped; the client resubscribes
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := f.write(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
