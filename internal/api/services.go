package api

import (
	"github.com/geoproapp/geopro-server/internal/category"
	"github.com/geoproapp/geopro-server/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Sessions   *service.SessionService
	Categories *category.Mapper
}
