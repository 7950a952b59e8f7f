package tosla

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindTosla, New)
}
