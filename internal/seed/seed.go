package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/config"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	planrepository "github.com/smallbiznis/dealflow/internal/plan/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsurePlans upserts every catalog plan by name. Safe to run on every start.
func EnsurePlans(ctx context.Context, db *gorm.DB, catalog config.PlanCatalog) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if len(catalog.Plans) == 0 {
		return errors.New("plan catalog is empty")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	repo := planrepository.Provide()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, spec := range catalog.Plans {
			if err := ensurePlanTx(ctx, tx, repo, node, spec); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, repo plandomain.Repository, node *snowflake.Node, spec config.PlanSpec) error {
	name := strings.ToLower(strings.TrimSpace(spec.Name))
	now := time.Now().UTC()

	features := spec.Features
	if features == nil {
		features = []string{}
	}

	existing, err := repo.FindByName(ctx, tx, name)
	if err != nil {
		return err
	}

	plan := &plandomain.Plan{
		ID:             node.Generate(),
		Name:           name,
		MaxUsers:       spec.MaxUsers,
		MaxDeals:       spec.MaxDeals,
		MaxPipelines:   spec.MaxPipelines,
		MaxContacts:    spec.MaxContacts,
		MaxAutomations: spec.MaxAutomations,
		Features:       datatypes.NewJSONSlice(features),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		plan.ID = existing.ID
		plan.CreatedAt = existing.CreatedAt
	}

	return repo.Upsert(ctx, tx, plan)
}
