package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"

	"github.com/freightwise/shipmentqa/pkg/pipeline"
	"github.com/freightwise/shipmentqa/pkg/scope"
	"github.com/freightwise/shipmentqa/pkg/session"
)

// AppUser is the authenticated caller: its identity and the consignee codes
// declared in its token. Declared codes are an upper bound; the registry and
// hierarchy decide what the caller actually sees.
type AppUser struct {
	Identity       string
	ConsigneeCodes []string
}

type App struct {
	Pipeline     *pipeline.Pipeline
	Sessions     session.Store
	Registry     *scope.IdentityRegistry
	Key          *keyfunc.Keyfunc
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{
				Context: c,
				App:     app,
			}
			return next(cc)
		}
	}
}
