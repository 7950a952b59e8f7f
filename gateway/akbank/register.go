package akbank

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindAkbank, New)
}
