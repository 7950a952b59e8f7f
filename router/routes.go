package router

import (
	"github.com/go-chi/chi/v5"
	v1 "github.com/mewspay/vpos/router/v1"

	// Import for side-effect registration
	_ "github.com/mewspay/vpos/gateway/akbank"
	_ "github.com/mewspay/vpos/gateway/estpos"
	_ "github.com/mewspay/vpos/gateway/garanti"
	_ "github.com/mewspay/vpos/gateway/interpos"
	_ "github.com/mewspay/vpos/gateway/kuveyt"
	_ "github.com/mewspay/vpos/gateway/payflex"
	_ "github.com/mewspay/vpos/gateway/payfor"
	_ "github.com/mewspay/vpos/gateway/posnet"
	_ "github.com/mewspay/vpos/gateway/tosla"
)

func Routes(r chi.Router, deps v1.Dependencies) {
	r.Route("/v1", func(r chi.Router) {
		v1.Routes(r, deps)
	})
}
