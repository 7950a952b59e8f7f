package posnet

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindPosNet, New)
}
