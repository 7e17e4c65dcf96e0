package product

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, eventID uuid.UUID, boothID *int, name string, priceCents int64) (*Product, error)
	GetByIDs(ctx context.Context, eventID uuid.UUID, ids []int) ([]Product, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Product, error)
	SetActive(ctx context.Context, id int, active bool) error
}
