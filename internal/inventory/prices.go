package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
)

// PriceResolver serves the unit price snapshot from the SKU registry.
type PriceResolver struct {
	repo Repository
}

func NewPriceResolver(repo Repository) *PriceResolver {
	return &PriceResolver{repo: repo}
}

func (p *PriceResolver) UnitPriceCents(ctx context.Context, inventoryID uuid.UUID) (int, error) {
	item, err := p.repo.FindByID(ctx, inventoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("inventory item %s not found", inventoryID))
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading unit price")
	}
	return item.UnitPriceCents, nil
}
