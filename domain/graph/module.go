package graph

import (
	"go.uber.org/fx"
)

// Module provides graph dependencies via fx
var Module = fx.Module("graph",
	fx.Provide(
		fx.Annotate(NewNeo4jRunner, fx.As(new(Runner))),
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
