package auth

import (
	"strings"

	"github.com/nimburion/eventsvc/pkg/auth"
	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/middleware/ratelimit"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Handler exposes the account endpoints under /api/v1/auth.
type Handler struct {
	svc          *Service
	authenticate router.MiddlewareFunc
	loginGuard   *ratelimit.Guard
}

// NewHandler wires svc to HTTP. loginGuard may be nil to disable login
// throttling.
func NewHandler(svc *Service, authenticate router.MiddlewareFunc, loginGuard *ratelimit.Guard) *Handler {
	return &Handler{svc: svc, authenticate: authenticate, loginGuard: loginGuard}
}

// Register mounts the routes on r.
func (h *Handler) Register(r router.Router) {
	g := r.Group("/api/v1/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.GET("/me", h.me, h.authenticate)
}

func (h *Handler) register(c router.Context) error {
	var req RegisterRequest
	if err := controller.BindAndValidate(c, &req); err != nil {
		return controller.Error(c, err)
	}
	user, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Created(c, user)
}

func (h *Handler) login(c router.Context) error {
	var req LoginRequest
	if err := controller.BindAndValidate(c, &req); err != nil {
		return controller.Error(c, err)
	}
	// Throttled per login name before the password is checked.
	key := "user:" + strings.ToLower(strings.TrimSpace(req.Username))
	if err := h.loginGuard.Check(c.Request().Context(), key); err != nil {
		h.loginGuard.RetryAfter(c)
		return controller.Error(c, err)
	}
	token, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, token)
}

func (h *Handler) me(c router.Context) error {
	claims := auth.GetClaims(c.Request().Context())
	if claims == nil {
		return controller.Error(c, controller.NewUnauthorizedError(controller.ReasonNotAuthenticated, "Could not validate credentials"))
	}
	me, err := h.svc.Me(c.Request().Context(), claims.Subject)
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.Success(c, me)
}
