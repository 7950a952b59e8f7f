package payflex

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindPayFlex, New)
}
