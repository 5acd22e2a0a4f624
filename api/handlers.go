package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tarefasplus/dashboard"
	"tarefasplus/domain"
	"tarefasplus/share"
	"tarefasplus/subscription"
)

const taskBodyMaxSize = 64 << 10

// Querier reads an owner's current task list.
type Querier interface {
	Query(ctx context.Context, owner string) ([]domain.Task, error)
}

// Subscriber opens live queries.
type Subscriber interface {
	Subscribe(ctx context.Context, owner string, push func([]domain.Task)) (*subscription.Subscription, error)
}

type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Store   Querier
	Engine  dashboard.Mutator
	Hub     Subscriber
	BaseURL string
	Auth    Authenticator
	Logger  *log.Logger
}

type taskRequest struct {
	Tarefa string `json:"tarefa"`
	Public bool   `json:"public"`
}

type shareResponse struct {
	URL string `json:"url"`
}

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	e.GET("/healthz", healthz())
	e.GET("/api/tasks", getTasks(d))
	e.POST("/api/tasks", postTask(d))
	e.PUT("/api/tasks/:id", putTask(d))
	e.DELETE("/api/tasks/:id", deleteTask(d))
	e.POST("/api/tasks/:id/share", shareTask(d))
	e.GET("/stream", streamTasks(d))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func owner(c echo.Context, auth Authenticator) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token := c.QueryParam("token"); authHeader == "" && token != "" {
		authHeader = "Bearer " + token
	}
	return auth.UserIDFromAuthHeader(authHeader)
}

func decodeTask(c echo.Context) (taskRequest, error) {
	var req taskRequest
	lr := io.LimitReader(c.Request().Body, taskBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

func storeError(c echo.Context, logger *log.Logger, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return c.String(http.StatusNotFound, "task not found")
	}
	logger.WithError(err).WithField("path", c.Path()).Error("task request failed")
	return c.String(http.StatusInternalServerError, err.Error())
}

// ownedTask resolves id within userID's tasks so one owner cannot touch
// another owner's documents.
func ownedTask(ctx context.Context, store Querier, userID, id string) (domain.Task, error) {
	tasks, err := store.Query(ctx, userID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, domain.ErrNotFound
}

func getTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := owner(c, d.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := d.Store.Query(c.Request().Context(), userID)
		if err != nil {
			return storeError(c, d.Logger, err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

func postTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := owner(c, d.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		req, err := decodeTask(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Tarefa == "" {
			return c.NoContent(http.StatusNoContent)
		}
		if err := d.Engine.Create(c.Request().Context(), req.Tarefa, req.Public, userID); err != nil {
			return storeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func putTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := owner(c, d.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		req, err := decodeTask(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Tarefa == "" {
			return c.NoContent(http.StatusNoContent)
		}
		ctx := c.Request().Context()
		id := c.Param("id")
		if _, err := ownedTask(ctx, d.Store, userID, id); err != nil {
			return storeError(c, d.Logger, err)
		}
		if err := d.Engine.Update(ctx, id, req.Tarefa, req.Public); err != nil {
			return storeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func deleteTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := owner(c, d.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		id := c.Param("id")
		if _, err := ownedTask(ctx, d.Store, userID, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.NoContent(http.StatusNoContent)
			}
			return storeError(c, d.Logger, err)
		}
		if err := d.Engine.Delete(ctx, id); err != nil {
			return storeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// shareTask returns the link for the browser to copy.
func shareTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := owner(c, d.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		id := c.Param("id")
		if _, err := ownedTask(ctx, d.Store, userID, id); err != nil {
			return storeError(c, d.Logger, err)
		}
		var copied string
		sharer := share.Sharer{
			BaseURL: d.BaseURL,
			Clipboard: share.ClipboardFunc(func(_ context.Context, text string) error {
				copied = text
				return nil
			}),
		}
		if _, err := sharer.Share(ctx, id); err != nil {
			return storeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, shareResponse{URL: copied})
	}
}

func streamTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := owner(c, d.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		// only the newest snapshot matters; a slow client skips stale ones
		updates := make(chan []domain.Task, 1)
		push := func(tasks []domain.Task) {
			for {
				select {
				case updates <- tasks:
					return
				default:
					select {
					case <-updates:
					default:
					}
				}
			}
		}

		ctx := c.Request().Context()
		sub, err := d.Hub.Subscribe(ctx, userID, push)
		if err != nil {
			return storeError(c, d.Logger, err)
		}
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return nil
			case tasks := <-updates:
				if tasks == nil {
					tasks = []domain.Task{}
				}
				data, err := sonic.Marshal(tasks)
				if err != nil {
					c.Logger().Error(err)
					return err
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return err
				}
				if _, err := c.Response().Write(data); err != nil {
					return err
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return err
				}
				flusher.Flush()
			}
		}
	}
}
