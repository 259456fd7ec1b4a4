package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler is a command handler with its match rule and middleware.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands returns every bot command keyed by its slash name.
// Plain group messages go to NewMessageHandler, installed as the default handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	command := func(pattern string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  mw,
		}
	}

	return map[string]RegisteredHandler{
		"/start":   command("start", NewStartHandler(deps)),
		"/help":    command("help", NewHelpHandler(deps)),
		"/stats":   command("stats", NewStatsHandler(deps)),
		"/weekly":  command("weekly", NewWeeklyHandler(deps)),
		"/cleanup": command("cleanup", NewCleanupHandler(deps), AdminOnly(deps)),
	}
}
