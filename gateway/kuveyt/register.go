package kuveyt

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindKuveyt, New)
}
