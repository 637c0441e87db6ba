package redisx

const (
	// idem:{scope} -> 処理中マーカー or 結果JSON
	keyIdemPrefix = "idem:"
)

func idemKey(key string) string {
	return keyIdemPrefix + key
}
