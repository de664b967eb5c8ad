package auth

import (
	"maps"

	"github.com/gofiber/fiber/v2"
)

var TemplateUserKey = "current_user"

// TemplateHelpers returns the globals every auth page can rely on.
//
// In templates:
//
//	{% if is_authenticated %}
//	{{ current_user.FullName }}
//	{% if is_staff %}
//	<form action="{{ api_prefix }}/login">
func (h *HTTPAuthenticator) TemplateHelpers(c *fiber.Ctx) fiber.Map {
	helpers := fiber.Map{
		"is_authenticated": false,
		"is_staff":         false,
		"is_superuser":     false,
		"api_prefix":       h.routes.APIPrefix,
		"login_url":        h.routes.LoginPage,
		"routes": fiber.Map{
			"dashboard": h.routes.Dashboard,
			"profile":   h.routes.Profile,
			"settings":  h.routes.Settings,
		},
	}

	user, ok := CurrentUser(c)
	if !ok || user == nil {
		return helpers
	}

	helpers[TemplateUserKey] = user.ToProfile()
	helpers["is_authenticated"] = user.IsActive()
	helpers["is_staff"] = user.IsStaff
	helpers["is_superuser"] = user.IsSuperuser
	return helpers
}

// MergeTemplateData layers data over TemplateHelpers. Keys in data win.
func (h *HTTPAuthenticator) MergeTemplateData(c *fiber.Ctx, data fiber.Map) fiber.Map {
	out := h.TemplateHelpers(c)
	maps.Copy(out, data)
	return out
}
