package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/deal/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"gorm.io/gorm"
)

func (s *Service) AddProduct(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.AddProductRequest) (*domain.LineItemChange, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	product, err := s.products.FindByID(ctx, s.db, tc.OrgID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	unitPrice := product.Price
	if req.UnitPrice != nil {
		unitPrice = *req.UnitPrice
	}
	discount := decimal.Zero
	if req.Discount != nil {
		discount = *req.Discount
	}
	total, err := lineTotal(quantity, unitPrice, discount)
	if err != nil {
		return nil, err
	}

	var change *domain.LineItemChange
	err = s.mutateLineItems(ctx, tc, id, func(tx *gorm.DB, deal *domain.Deal) (snowflake.ID, error) {
		exists, err := s.repo.LineItemExists(ctx, tx, deal.ID, product.ID)
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, domain.ErrProductAlreadyAdded
		}

		now := s.clock.Now()
		item := &domain.DealProduct{
			ID:        s.genID.Generate(),
			DealID:    deal.ID,
			ProductID: product.ID,
			Quantity:  quantity,
			UnitPrice: unitPrice.Round(2),
			Discount:  discount.Round(2),
			Total:     total,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateLineItem(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return 0, domain.ErrProductAlreadyAdded
			}
			return 0, err
		}

		event := domain.NewEvent(s.genID.Generate(), deal.ID, domain.ProductAddedPayload{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    quantity,
			Total:       total,
		}, tc.MemberRef(), now)
		if err := s.repo.InsertEvent(ctx, tx, event); err != nil {
			return 0, err
		}
		return item.ID, nil
	}, &change)
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Service) UpdateProduct(ctx context.Context, tc tenant.Context, id, itemID snowflake.ID, req domain.UpdateProductRequest) (*domain.LineItemChange, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var change *domain.LineItemChange
	err := s.mutateLineItems(ctx, tc, id, func(tx *gorm.DB, deal *domain.Deal) (snowflake.ID, error) {
		item, err := s.repo.FindLineItem(ctx, tx, deal.ID, itemID)
		if err != nil {
			return 0, err
		}
		if item == nil {
			return 0, domain.ErrLineItemNotFound
		}

		quantity, unitPrice, discount := item.Quantity, item.UnitPrice, item.Discount
		if req.Quantity != nil {
			quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			unitPrice = *req.UnitPrice
		}
		if req.Discount != nil {
			discount = *req.Discount
		}
		total, err := lineTotal(quantity, unitPrice, discount)
		if err != nil {
			return 0, err
		}

		if err := s.repo.UpdateLineItem(ctx, tx, item.ID, map[string]any{
			"quantity":   quantity,
			"unit_price": unitPrice.Round(2),
			"discount":   discount.Round(2),
			"total":      total,
			"updated_at": s.clock.Now(),
		}); err != nil {
			return 0, err
		}
		return item.ID, nil
	}, &change)
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Service) RemoveProduct(ctx context.Context, tc tenant.Context, id, itemID snowflake.ID) (*domain.LineItemChange, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var change *domain.LineItemChange
	err := s.mutateLineItems(ctx, tc, id, func(tx *gorm.DB, deal *domain.Deal) (snowflake.ID, error) {
		item, err := s.repo.FindLineItem(ctx, tx, deal.ID, itemID)
		if err != nil {
			return 0, err
		}
		if item == nil {
			return 0, domain.ErrLineItemNotFound
		}
		return 0, s.repo.DeleteLineItem(ctx, tx, item.ID)
	}, &change)
	if err != nil {
		return nil, err
	}
	return change, nil
}

// mutateLineItems locks the deal, applies write, re-reads every line item and stores their
// sum as the deal value, all in one transaction. write returns the id of the item to echo
// back, or zero.
func (s *Service) mutateLineItems(
	ctx context.Context,
	tc tenant.Context,
	dealID snowflake.ID,
	write func(tx *gorm.DB, deal *domain.Deal) (snowflake.ID, error),
	out **domain.LineItemChange,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deal, err := s.repo.FindForUpdate(ctx, tx, tc.OrgID, dealID)
		if err != nil {
			return err
		}
		if deal == nil {
			return domain.ErrDealNotFound
		}

		itemID, err := write(tx, deal)
		if err != nil {
			return err
		}

		items, err := s.repo.ListLineItems(ctx, tx, deal.ID)
		if err != nil {
			return err
		}
		value := decimal.Zero
		var echoed *domain.DealProduct
		for i := range items {
			value = value.Add(items[i].Total)
			if items[i].ID == itemID {
				echoed = &items[i]
			}
		}
		value = value.Round(2)

		if err := s.repo.Update(ctx, tx, deal.ID, map[string]any{
			"value":      value,
			"updated_at": s.clock.Now(),
		}); err != nil {
			return err
		}

		*out = &domain.LineItemChange{Item: echoed, DealValue: value}
		return nil
	})
}

func lineTotal(quantity int, unitPrice, discount decimal.Decimal) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, domain.ErrInvalidQuantity
	}
	if unitPrice.IsNegative() || discount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidLineAmount
	}
	total := domain.LineTotal(quantity, unitPrice.Round(2), discount.Round(2))
	if total.IsNegative() {
		return decimal.Zero, domain.ErrInvalidLineAmount
	}
	return total.Round(2), nil
}
