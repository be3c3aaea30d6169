package handlers

import (
	"media-library/internal/access"
	"media-library/internal/indexer"
	"media-library/internal/library"
)

// Scheduler runs reconciliation in the background and reports its state to
// the health and parse endpoints.
type Scheduler interface {
	IsReady() bool
	GetHealthStatus() indexer.HealthStatus
	TriggerOwner(ownerID string) bool
	OwnerStatus(ownerID string) indexer.OwnerStatus
}

type Handlers struct {
	library   *library.Service
	keys      *access.KeyStore
	scheduler Scheduler
}

func New(svc *library.Service, keys *access.KeyStore, scheduler Scheduler) *Handlers {
	return &Handlers{
		library:   svc,
		keys:      keys,
		scheduler: scheduler,
	}
}
