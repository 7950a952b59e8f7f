package garanti

import "github.com/mewspay/vpos/gateway"

func init() {
	gateway.Register(gateway.KindGaranti, New)
}
