package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/totegamma/portfolio"
	"github.com/totegamma/portfolio/internal/domain"
	"github.com/totegamma/portfolio/internal/present/rest/presenter"
	"github.com/totegamma/portfolio/internal/service"
	"github.com/totegamma/portfolio/internal/usecase"
)

type Handler struct {
	casestudy *usecase.CaseStudyUsecase
	signal    *service.SignalService
	gatherer  prometheus.Gatherer
	log       zerolog.Logger
}

func NewHandler(
	casestudy *usecase.CaseStudyUsecase,
	signal *service.SignalService,
	gatherer prometheus.Gatherer,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		casestudy: casestudy,
		signal:    signal,
		gatherer:  gatherer,
		log:       log.With().Str("component", "rest").Logger(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.handleHealthz)
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	e.GET("/realtime", h.handleRealtime)

	api := e.Group("/api/v1")
	api.GET("/casestudies", h.handleList)
	api.POST("/casestudies", h.handleCreate)
	api.GET("/casestudies/:id", h.handleGet)
	api.PUT("/casestudies/:id", h.handleUpdate)
	api.DELETE("/casestudies/:id", h.handleDelete)
	api.POST("/casestudies/:id/views", h.handleRecordView)
	api.GET("/casestudies/:id/versions", h.handleListVersions)
	api.GET("/casestudies/:id/versions/:n", h.handleGetVersion)
	api.POST("/casestudies/:id/versions/:n/restore", h.handleRestoreVersion)
	api.GET("/search", h.handleSearch)
	api.POST("/admin/search/rebuild", h.handleRebuildSearch)
}

func requester(c echo.Context) domain.Requester {
	return domain.RequesterFrom(c.Request().Context())
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
// Validation errors raised while decoding sections keep their field path.
func decode(c echo.Context, dst any) error {
	err := json.NewDecoder(c.Request().Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var ve domain.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return domain.ValidationError{Field: typeErr.Field, Message: "has the wrong type"}
	}
	return domain.ValidationError{Field: "body", Message: "is not valid JSON"}
}

// expectedUpdatedAt prefers the header over the body value.
func expectedUpdatedAt(c echo.Context, fromBody *time.Time) (*time.Time, error) {
	header := c.Request().Header.Get(domain.ExpectedUpdatedAtHeader)
	if header == "" {
		return fromBody, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, header)
	if err != nil {
		return nil, domain.ValidationError{Field: domain.ExpectedUpdatedAtHeader, Message: "must be an RFC 3339 timestamp"}
	}
	return &parsed, nil
}

func versionParam(c echo.Context) (int, error) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return 0, domain.ValidationError{Field: "version", Message: "must be a number"}
	}
	return n, nil
}

func (h *Handler) handleHealthz(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	var filter domain.ListFilter
	if s := c.QueryParam("status"); s != "" {
		status, ok := domain.ParseStatus(s)
		if !ok {
			return presenter.BadRequestMessage(c, "status", "must be one of: draft published archived")
		}
		filter.Status = &status
	}
	if f := c.QueryParam("featured"); f != "" {
		featured, err := strconv.ParseBool(f)
		if err != nil {
			return presenter.BadRequestMessage(c, "featured", "must be a boolean")
		}
		filter.Featured = &featured
	}
	filter.Tag = c.QueryParam("tag")
	if l := c.QueryParam("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			return presenter.BadRequestMessage(c, "limit", "must be a positive number")
		}
		filter.Limit = limit
	}

	list, err := h.casestudy.List(ctx, requester(c), filter)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, list)
}

func (h *Handler) handleCreate(c echo.Context) error {
	ctx := c.Request().Context()

	var req portfolio.CreateRequest
	if err := decode(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	result, err := h.casestudy.Create(ctx, requester(c), req.Input())
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, portfolio.WriteResponse(result))
}

func (h *Handler) handleGet(c echo.Context) error {
	ctx := c.Request().Context()

	cs, err := h.casestudy.Get(ctx, requester(c), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, cs)
}

func (h *Handler) handleUpdate(c echo.Context) error {
	ctx := c.Request().Context()

	var req portfolio.UpdateRequest
	if err := decode(c, &req); err != nil {
		return presenter.Error(c, err)
	}
	expected, err := expectedUpdatedAt(c, req.ExpectedUpdatedAt)
	if err != nil {
		return presenter.Error(c, err)
	}

	result, err := h.casestudy.Update(ctx, requester(c), c.Param("id"), req.Patch(), expected)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, portfolio.WriteResponse(result))
}

func (h *Handler) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()

	confirmed := c.QueryParam("confirm") == "true"
	err := h.casestudy.Delete(ctx, requester(c), c.Param("id"), confirmed)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

func (h *Handler) handleRecordView(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.casestudy.RecordView(ctx, requester(c), c.Param("id")); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

func (h *Handler) handleListVersions(c echo.Context) error {
	ctx := c.Request().Context()

	versions, err := h.casestudy.ListVersions(ctx, requester(c), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, versions)
}

func (h *Handler) handleGetVersion(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := versionParam(c)
	if err != nil {
		return presenter.Error(c, err)
	}
	version, err := h.casestudy.GetVersion(ctx, requester(c), c.Param("id"), n)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, version)
}

func (h *Handler) handleRestoreVersion(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := versionParam(c)
	if err != nil {
		return presenter.Error(c, err)
	}
	var req portfolio.RestoreRequest
	if err := decode(c, &req); err != nil {
		return presenter.Error(c, err)
	}
	expected, err := expectedUpdatedAt(c, req.ExpectedUpdatedAt)
	if err != nil {
		return presenter.Error(c, err)
	}

	result, err := h.casestudy.RestoreVersion(ctx, requester(c), c.Param("id"), n, expected)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, portfolio.WriteResponse(result))
}

func (h *Handler) handleSearch(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			return presenter.BadRequestMessage(c, "limit", "must be a number")
		}
		limit = parsed
	}

	hits, err := h.casestudy.Search(ctx, requester(c), c.QueryParam("q"), limit)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, hits)
}

func (h *Handler) handleRebuildSearch(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := h.casestudy.RebuildSearchIndex(ctx, requester(c))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, portfolio.RebuildResponse{Entries: entries})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Request is a message sent by a realtime subscriber.
type Request struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if requester(c).IsAnonymous() {
		return presenter.Error(c, domain.AuthorizationError{Action: "casestudy.realtime"})
	}
	if h.signal == nil {
		return presenter.Error(c, domain.StorageError{Op: "realtime", Retryable: true})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to upgrade websocket")
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan portfolio.ChangeEvent)
	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{}, 1)

	go func() {
		defer func() { quit <- struct{}{} }()
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				var wsErr *websocket.CloseError
				if errors.As(err, &wsErr) {
					if wsErr.Code != websocket.CloseNormalClosure && wsErr.Code != websocket.CloseGoingAway {
						h.log.Debug().Err(wsErr).Msg("websocket closed")
					}
				} else {
					h.log.Error().Err(err).Msg("error reading message")
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.IDs:
				case <-ctx.Done():
					return
				}
				h.log.Debug().Strs("ids", req.IDs).Msg("socket subscribe")
			case "h": // heartbeat
			default:
				h.log.Info().Str("type", req.Type).Msg("unknown request type")
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event, ok := <-output:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(event); err != nil {
				h.log.Error().Err(err).Msg("error writing message")
				return nil
			}
		}
	}
}
