package models

import "strings"

// AssetType is the asset class an instrument belongs to.
type AssetType string

const (
	AssetCrypto    AssetType = "crypto"
	AssetStock     AssetType = "stock"
	AssetForex     AssetType = "forex"
	AssetCommodity AssetType = "commodity"
	AssetIndex     AssetType = "index"
)

// AssetTypes lists every asset class in registry priority order.
var AssetTypes = []AssetType{AssetCrypto, AssetStock, AssetForex, AssetCommodity, AssetIndex}

// ParseAssetType returns the asset type named by s, case-insensitively.
func ParseAssetType(s string) (AssetType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range AssetTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Instrument is a tradable symbol known to the registry.
type Instrument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	AssetType   AssetType `json:"assetType"`
	Category    string    `json:"category"`
	CoinGeckoID string    `json:"coingeckoId,omitempty"`
}
