package api

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// requireAuth resolves the bearer credential into a principal.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		p, err := h.svc.Auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// requireAdmin is the role gate for the admin surface.
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		p, err := h.svc.Auth.AuthorizeAdmin(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principal(c *gin.Context) *service.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*service.Principal)
	return p
}

func (h *Handler) signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.svc.Auth.Signup(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.svc.Auth.Login(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, principal(c))
}
