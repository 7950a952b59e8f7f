package payfor

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindPayFor, New)
}
