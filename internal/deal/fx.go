package deal

import (
	"github.com/smallbiznis/dealflow/internal/deal/repository"
	"github.com/smallbiznis/dealflow/internal/deal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("deal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
