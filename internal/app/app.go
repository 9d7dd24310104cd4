// Package app provides application initialization and dependency wiring.
//
// App is the container holding every long-lived component: the database
// pool, the model backend, the knowledge and conversation stores, and the
// answer service built on top of them.
package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitcoach/fitcoach/internal/backend"
	"github.com/fitcoach/fitcoach/internal/config"
	"github.com/fitcoach/fitcoach/internal/conversation"
	"github.com/fitcoach/fitcoach/internal/knowledge"
	"github.com/fitcoach/fitcoach/internal/log"
	"github.com/fitcoach/fitcoach/internal/rag"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool  *pgxpool.Pool
	Backend *backend.Backend

	Knowledge     *knowledge.Store
	Pipeline      *knowledge.Pipeline
	Conversations *conversation.Store
	RAG           *rag.Service

	dbCleanup func()
}

// Close releases every resource Setup acquired. Safe to call after a failed
// Setup.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	return nil
}
