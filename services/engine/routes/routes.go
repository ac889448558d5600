// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes maps the engine's HTTP surface onto gin.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/auraquotes/aura/services/engine/handlers"
	"github.com/auraquotes/aura/services/engine/observability"
)

// SetupRoutes registers every engine route on the router.
func SetupRoutes(router *gin.Engine, eng handlers.Engine) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(eng))
		v1.GET("/chat/history/:sessionId", handlers.GetChatHistory(eng))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(eng))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(eng))
		}

		// Quote collection routes. The static categories route must
		// coexist with the :category parameter; gin resolves the
		// static segment first.
		quotes := v1.Group("/quotes")
		{
			quotes.GET("/categories", handlers.ListCategories)
			quotes.GET("/:category", handlers.GetQuotesByCategory(eng))
			quotes.POST("", handlers.CreateQuote(eng))
		}
	}
}
