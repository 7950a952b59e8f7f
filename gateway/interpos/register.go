package interpos

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindInterPOS, New)
}
