package estpos

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindEstPOS, New)
}
