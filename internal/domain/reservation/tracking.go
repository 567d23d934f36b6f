package reservation

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

// trackingEncoding はパディングなしの標準base32
var trackingEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewTrackingCode は利用者が参照できる一意な追跡コードを生成する
// 形式: TR-XXXXXXXXXXXX（大文字）。衝突時の再試行はリポジトリ層が担う
func NewTrackingCode() string {
	id := uuid.New()
	encoded := trackingEncoding.EncodeToString(id[:])
	return "TR-" + strings.ToUpper(encoded[:12])
}
