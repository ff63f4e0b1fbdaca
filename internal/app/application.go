package app

import (
	"context"
	"fmt"

	"github.com/minted-network/escrow_layer/internal/app/services/escrow"
	"github.com/minted-network/escrow_layer/internal/app/storage"
	"github.com/minted-network/escrow_layer/internal/app/storage/memory"
	"github.com/minted-network/escrow_layer/internal/app/system"
	"github.com/minted-network/escrow_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Escrow storage.EscrowStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Escrow *escrow.Service
}

// New builds a fully initialised application with the provided stores and
// ledger collaborator. protocolAddr is the controller's own ledger address.
func New(stores Stores, ledger escrow.Ledger, protocolAddr string, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if protocolAddr == "" {
		return nil, fmt.Errorf("protocol address is required")
	}

	if stores.Escrow == nil {
		stores.Escrow = memory.New()
	}

	manager := system.NewManager()
	escrowService := escrow.New(stores.Escrow, ledger, protocolAddr, log)

	if err := manager.Register(escrowService); err != nil {
		return nil, fmt.Errorf("register escrow service: %w", err)
	}

	return &Application{
		manager: manager,
		log:     log,
		Escrow:  escrowService,
	}, nil
}

// Start starts all managed services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all managed services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
