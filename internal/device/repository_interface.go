package device

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Register(ctx context.Context, eventID uuid.UUID, name, mode string) (*Device, error)
	GetByID(ctx context.Context, id int) (*Device, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Device, error)
	SetMode(ctx context.Context, id int, mode string) error
	AssignBooth(ctx context.Context, id int, boothID int) error
	Disable(ctx context.Context, id int) error
	CreateBooth(ctx context.Context, eventID uuid.UUID, name string) (*Booth, error)
	ListBooths(ctx context.Context, eventID uuid.UUID) ([]Booth, error)
}
