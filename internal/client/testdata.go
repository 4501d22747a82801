// internal/client/testdata.go
package client

import (
	"math/rand"

	"bulkorder/internal/service/order/domain"
)

var assetNames = []string{
	"copper", "nickel", "zinc", "tin", "cobalt",
	"lithium", "silver", "palladium", "aluminium", "lead",
}

// RandomAsset 生成一笔随机的演练用子订单。
func RandomAsset() domain.Asset {
	return domain.Asset{
		Name:     assetNames[rand.Intn(len(assetNames))],
		Quantity: int64(rand.Intn(100) + 1),
	}
}
