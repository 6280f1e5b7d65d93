package limit

import (
	"github.com/smallbiznis/dealflow/internal/limit/repository"
	"github.com/smallbiznis/dealflow/internal/limit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("limit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
