package events

import (
	"net/url"
	"strconv"
	"time"

	"github.com/nimburion/eventsvc/pkg/auth"
	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/repository/document"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Handler exposes /api/v1/events. Every route requires a bearer token.
type Handler struct {
	svc          *Service
	authenticate router.MiddlewareFunc
}

func NewHandler(svc *Service, authenticate router.MiddlewareFunc) *Handler {
	return &Handler{svc: svc, authenticate: authenticate}
}

// Register mounts the routes on r.
func (h *Handler) Register(r router.Router) {
	g := r.Group("/api/v1/events", h.authenticate)
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/subscribe", h.subscribe)
	g.GET("/:id/subscribers", h.listSubscribers)
}

func userID(c router.Context) (string, error) {
	claims := auth.GetClaims(c.Request().Context())
	if claims == nil {
		return "", controller.NewUnauthorizedError(controller.ReasonNotAuthenticated, "Could not validate credentials")
	}
	return claims.Subject, nil
}

func (h *Handler) create(c router.Context) error {
	uid, err := userID(c)
	if err != nil {
		return controller.Error(c, err)
	}
	var req EventCreate
	if err := controller.BindAndValidate(c, &req); err != nil {
		return controller.Error(c, err)
	}
	ev, err := h.svc.Create(c.Request().Context(), uid, req)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Created(c, ev)
}

func (h *Handler) get(c router.Context) error {
	ev, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, ev)
}

func (h *Handler) list(c router.Context) error {
	req, err := ParseListQuery(c.Request().URL.Query())
	if err != nil {
		return controller.Error(c, err)
	}
	page, err := h.svc.List(c.Request().Context(), req)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, page)
}

func (h *Handler) update(c router.Context) error {
	uid, err := userID(c)
	if err != nil {
		return controller.Error(c, err)
	}
	var req EventUpdate
	if err := controller.BindAndValidate(c, &req); err != nil {
		return controller.Error(c, err)
	}
	ev, err := h.svc.Update(c.Request().Context(), c.Param("id"), uid, req)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, ev)
}

func (h *Handler) delete(c router.Context) error {
	uid, err := userID(c)
	if err != nil {
		return controller.Error(c, err)
	}
	ev, err := h.svc.Delete(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, ev)
}

func (h *Handler) subscribe(c router.Context) error {
	uid, err := userID(c)
	if err != nil {
		return controller.Error(c, err)
	}
	sub, err := h.svc.Subscribe(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, sub)
}

func (h *Handler) listSubscribers(c router.Context) error {
	members, err := h.svc.Subscribers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, map[string]interface{}{"event_id": c.Param("id"), "subscribers": members})
}

// ParseListQuery reads the listing request from query parameters:
// page, page_size, start_time_min/max, end_time_min/max, status, order
// ("field:asc,other:desc"), sort_by and sort_order.
func ParseListQuery(q url.Values) (document.PageRequest[EventFilters], error) {
	req := document.NewPageRequest[EventFilters]()

	var err error
	if req.Page, err = intParam(q, "page", req.Page); err != nil {
		return req, err
	}
	if req.PageSize, err = intParam(q, "page_size", req.PageSize); err != nil {
		return req, err
	}

	var filters EventFilters
	if filters.StartTime, err = rangeParam(q, "start_time"); err != nil {
		return req, err
	}
	if filters.EndTime, err = rangeParam(q, "end_time"); err != nil {
		return req, err
	}
	if raw := q.Get("status"); raw != "" {
		status := Status(raw)
		switch status {
		case StatusScheduled, StatusCanceled, StatusCompleted:
		default:
			return req, controller.NewValidationError(controller.ReasonValidationFailed, "invalid status",
				map[string]interface{}{"status": "oneof=scheduled canceled completed"})
		}
		filters.Status = &status
	}
	req.Filters = &filters

	if raw := q.Get("order"); raw != "" {
		if req.Order, err = document.ParseOrder(raw); err != nil {
			return req, controller.NewValidationError(controller.ReasonValidationFailed, err.Error(), nil)
		}
	}
	req.SortBy = q.Get("sort_by")
	req.SortOrder = q.Get("sort_order")
	return req, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, controller.NewValidationError(controller.ReasonValidationFailed, name+" must be an integer",
			map[string]interface{}{name: raw})
	}
	return n, nil
}

func rangeParam(q url.Values, field string) (*document.RangeFilter[time.Time], error) {
	var r document.RangeFilter[time.Time]
	for _, bound := range []struct {
		suffix string
		dst    **time.Time
	}{{"_min", &r.Min}, {"_max", &r.Max}} {
		raw := q.Get(field + bound.suffix)
		if raw == "" {
			continue
		}
		t, err := ParseTime(raw)
		if err != nil {
			return nil, invalidDatetime(field+bound.suffix, raw)
		}
		*bound.dst = &t
	}
	if r.Min == nil && r.Max == nil {
		return nil, nil
	}
	return &r, nil
}
