package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"lockd-api/domain"
	"lockd-api/storage"
)

// Handlers bundles the collaborators of the HTTP surface. Deduper, Evictor
// and Reminders are optional.
type Handlers struct {
	Reader    Reader
	Processor Processor
	Auth      Authenticator
	Deduper   Deduper
	Evictor   Evictor
	Reminders *ReminderDispatcher
	Logger    *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, h Handlers) {
	if h.Logger == nil {
		h.Logger = log.StandardLogger()
	}
	e.GET("/api/tasks", getTasks(h))
	e.GET("/api/notifications", getNotifications(h))
	e.GET("/api/stats", getStats(h))
	e.GET("/api/accounts/:address", getAccount(h))
	e.POST("/api/commands", postCommands(h))
	e.GET("/healthz", healthz(h))
}

func healthz(h Handlers) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := healthResponse{Status: "ok"}
		if h.Reminders != nil {
			health := h.Reminders.Health()
			resp.Reminders = &health
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getTasks(h Handlers) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, h.Logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		list, fetchErr := h.Reader.FetchTodoList(ctx, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil && !errors.Is(fetchErr, storage.ErrNotFound) {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, "failed to fetch tasks")
			return err
		}

		resp := tasksResponse{Owner: userID, Tasks: []domain.Task{}}
		if list != nil {
			resp.Tasks = list.Tasks
		}
		metrics.SetTasksReturned(len(resp.Tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getNotifications(h Handlers) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		inbox, err := h.Reader.FetchInbox(ctx, userID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch notifications")
		}
		resp := notificationsResponse{Owner: userID, Notifications: []domain.Notification{}}
		if inbox != nil {
			resp.Notifications = inbox.Notifications
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getStats(h Handlers) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		list, err := h.Reader.FetchTodoList(ctx, userID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch stats")
		}
		if list == nil {
			return c.JSON(http.StatusOK, domain.Stats{})
		}
		return c.JSON(http.StatusOK, list.ComputeStats())
	}
}

func getAccount(h Handlers) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		addr, ok := storage.ParseAddress(c.Param("address"))
		if !ok {
			return c.String(http.StatusBadRequest, "invalid account address")
		}
		rec, err := h.Reader.FetchRecord(ctx, addr)
		if errors.Is(err, storage.ErrNotFound) {
			return c.String(http.StatusNotFound, "account not found")
		}
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch account")
		}
		return c.JSON(http.StatusOK, accountResponse{
			Address: string(rec.Address),
			Version: rec.Version,
			Data:    rec.Data,
		})
	}
}

func postCommands(h Handlers) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]domain.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		results := make([]commandResult, 0, len(cmds))
		touched := make([]string, 0, 2)
		for i := range cmds {
			cmd := cmds[i]
			res := commandResult{IdempotencyKey: cmd.IdempotencyKey}

			deduped := false
			if cmd.IdempotencyKey != "" && h.Deduper != nil {
				added, dedupeErr := h.Deduper.Add(ctx, userID, cmd.IdempotencyKey)
				if dedupeErr != nil {
					c.Logger().Error(dedupeErr)
					return c.String(http.StatusServiceUnavailable, "idempotency store unavailable")
				}
				if !added {
					res.Duplicate = true
					results = append(results, res)
					continue
				}
				deduped = true
			}

			if cmd.ID == "" {
				cmd.ID = uuid.NewString()
			}
			cmd.Timestamp = nextTimestamp()

			out, applyErr := h.Processor.Apply(ctx, userID, cmd)
			if applyErr != nil {
				if deduped {
					if remErr := h.Deduper.Remove(ctx, userID, cmd.IdempotencyKey); remErr != nil {
						h.Logger.WithError(remErr).WithField("key", cmd.IdempotencyKey).Error("dedupe rollback failed")
					}
				}
				var cmdErr *domain.CommandError
				if errors.As(applyErr, &cmdErr) {
					res.ErrorKind = cmdErr.Kind
					res.Error = cmdErr.Error()
				} else {
					c.Logger().Error(applyErr)
					res.Error = "internal error"
				}
			} else {
				res.TaskID = out.TaskID
				touched = append(touched, out.Touched...)
			}
			results = append(results, res)
		}

		if h.Evictor != nil && len(touched) > 0 {
			h.Evictor.Evict(ctx, touched...)
		}
		return c.JSON(http.StatusOK, commandsResponse{Results: results})
	}
}
