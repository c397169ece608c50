package handlers

import (
	"github.com/Gamemanuel/BathPass/internal/config"
	"github.com/Gamemanuel/BathPass/internal/live"
	"github.com/Gamemanuel/BathPass/internal/queue"
)

// Package-level collaborators, wired once at startup.
var (
	Live *live.Store
	Line *queue.Engine
	Cfg  *config.Config
)

func Init(store *live.Store, engine *queue.Engine, cfg *config.Config) {
	Live = store
	Line = engine
	Cfg = cfg
}
