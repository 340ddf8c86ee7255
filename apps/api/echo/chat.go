package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/user"
)

type chatApi struct {
	svc    *chat.Service
	usrSvc user.Service
}

func registerChatAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := chatApi{svc: deps.ChatSvc, usrSvc: deps.UserSvc}

	g.GET("/chat/global", api.global, auth...)
	g.POST("/chat/global", api.sendGlobal, auth...)
	g.GET("/chat/counterparts", api.counterparts, auth...)
	g.GET("/chat/private", api.conversation, auth...)
	g.POST("/chat/private", api.sendPrivate, auth...)
	g.PUT("/chat/messages/:id", api.edit, auth...)
	g.DELETE("/chat/messages/:id", api.destroy, auth...)
}

func (api *chatApi) global(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msgs, err := api.svc.Global(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting global messages")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) sendGlobal(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data MessageRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MessageRequest")
	}
	m, err := api.svc.SendGlobal(ctx.Request().Context(), usr, data.Text)
	if err != nil {
		return errors.Wrap(err, "sending global message")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *chatApi) counterparts(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	users, err := api.svc.Counterparts(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting counterparts")
	}
	contacts := make([]Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, Contact{ID: u.ID, Name: u.FullName(), Role: u.Role})
	}
	return ctx.JSON(http.StatusOK, contacts)
}

// conversation answers with enabled=false and no messages while nobody can be talked to.
func (api *chatApi) conversation(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	pairKey, msgs, err := api.svc.Conversation(ctx.Request().Context(), usr, ctx.QueryParam("with"))
	if err != nil {
		if errors.Cause(err) == chat.ErrNoCounterpart {
			return ctx.JSON(http.StatusOK, ConversationResponse{Messages: []chat.Message{}})
		}
		return errors.Wrap(err, "getting conversation")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, ConversationResponse{PairKey: pairKey, Enabled: true, Messages: msgs})
}

func (api *chatApi) sendPrivate(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data MessageRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MessageRequest")
	}
	m, err := api.svc.SendPrivate(ctx.Request().Context(), usr, data.To, data.Text)
	if err != nil {
		return errors.Wrap(err, "sending private message")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *chatApi) edit(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data MessageRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MessageRequest")
	}
	m, err := api.svc.Edit(ctx.Request().Context(), usr, ctx.Param("id"), data.Text)
	if err != nil {
		return errors.Wrap(err, "editing message")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *chatApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting message")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	MessageRequest struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}

	Contact struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	}

	ConversationResponse struct {
		PairKey  string         `json:"pair_key"`
		Enabled  bool           `json:"enabled"`
		Messages []chat.Message `json:"messages"`
	}
)
