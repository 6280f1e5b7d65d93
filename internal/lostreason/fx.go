package lostreason

import (
	"github.com/smallbiznis/dealflow/internal/lostreason/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lostreason.service",
	fx.Provide(service.New),
)
