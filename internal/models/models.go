package models

import (
	"time"
)

type Book struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	Title       string  `gorm:"not null"                  json:"title"`
	Author      string  `gorm:"not null"                  json:"author"`
	Description string  `gorm:"not null"                  json:"description"`
	Price       float64 `gorm:"not null"                  json:"price"`
	FilePath    string  `json:"-"`
	FileFormat  string  `gorm:"default:pdf"               json:"file_format"`
	IsPublished bool    `gorm:"default:false;index"       json:"is_published"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"index"                    json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	Role      string `json:"role"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type Address struct {
	ID         uint   `gorm:"primaryKey"      json:"id"`
	UserID     uint   `gorm:"index;not null"  json:"user_id"`
	FullName   string `json:"full_name"`
	Line1      string `gorm:"not null"        json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	IsDefault  bool   `gorm:"default:false"   json:"is_default"`
}

// UnitPrice is snapshotted when the item is added to the cart; checkout
// totals use it, not the live book price.
type CartItem struct {
	ID        uint    `gorm:"primaryKey"                  json:"id"`
	UserID    uint    `gorm:"index;not null"              json:"user_id"`
	BookID    uint    `gorm:"not null"                    json:"book_id"`
	Quantity  uint    `gorm:"default:1;check:quantity>0"  json:"quantity"`
	UnitPrice float64 `gorm:"not null"                    json:"unit_price"`
}

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

type Order struct {
	ID               uint       `gorm:"primaryKey"       json:"id"`
	UserID           uint       `gorm:"index;not null"   json:"user_id"`
	Number           string     `gorm:"unique;not null"  json:"number"`
	Status           string     `gorm:"not null"         json:"status"`
	TotalAmount      float64    `gorm:"not null"         json:"total_amount"`
	Currency         string     `gorm:"default:USD"      json:"currency"`
	PaymentMethod    string     `json:"payment_method"`
	BillingAddressID *uint      `json:"billing_address_id"`
	PaidAt           *time.Time `json:"paid_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

type OrderItem struct {
	ID        uint    `gorm:"primaryKey"      json:"id"`
	OrderID   uint    `gorm:"index;not null"  json:"order_id"`
	UserID    uint    `gorm:"not null"        json:"user_id"`
	BookID    uint    `gorm:"not null"        json:"book_id"`
	Quantity  uint    `gorm:"not null"        json:"quantity"`
	UnitPrice float64 `gorm:"not null"        json:"unit_price"`
	Subtotal  float64 `gorm:"not null"        json:"subtotal"`
}

// PurchaseItem is a user's right to download one purchased book.
// DownloadLimit == nil means unlimited.
type PurchaseItem struct {
	ID            uint      `gorm:"primaryKey"      json:"id"`
	UserID        uint      `gorm:"index;not null"  json:"user_id"`
	BookID        uint      `gorm:"not null"        json:"book_id"`
	OrderItemID   uint      `gorm:"not null"        json:"order_item_id"`
	DownloadLimit *uint     `json:"download_limit"`
	DownloadsUsed uint      `gorm:"default:0"       json:"downloads_used"`
	IsActive      bool      `gorm:"default:true"    json:"is_active"`
	PurchasedAt   time.Time `gorm:"autoCreateTime"  json:"purchased_at"`
}

func (p *PurchaseItem) CanDownload() bool {
	if !p.IsActive {
		return false
	}
	if p.DownloadLimit == nil {
		return true
	}
	return p.DownloadsUsed < *p.DownloadLimit
}

// DownloadLink is a short-lived capability bound to one PurchaseItem.
// One-time links are deleted on consumption, so an existing row with an
// unexpired timestamp is the whole validity check.
type DownloadLink struct {
	ID             uint      `gorm:"primaryKey"       json:"id"`
	PurchaseItemID uint      `gorm:"index;not null"   json:"purchase_item_id"`
	Token          string    `gorm:"unique;not null"  json:"token"`
	ExpiresAt      time.Time `gorm:"not null"         json:"expires_at"`
	OneTime        bool      `gorm:"default:false"    json:"one_time"`
}

func (l *DownloadLink) IsValid(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

type DownloadLog struct {
	ID             uint      `gorm:"primaryKey"      json:"id"`
	PurchaseItemID uint      `gorm:"index;not null"  json:"purchase_item_id"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	DownloadedAt   time.Time `gorm:"autoCreateTime"  json:"downloaded_at"`
}

const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusSuccess   = "success"
	PaymentStatusFailed    = "failed"

	PaymentGatewayStub = "stub"
)

type Payment struct {
	ID          uint    `gorm:"primaryKey"           json:"id"`
	OrderID     uint    `gorm:"uniqueIndex;not null" json:"order_id"`
	Gateway     string  `gorm:"not null"             json:"gateway"`
	Amount      float64 `gorm:"not null"             json:"amount"`
	Currency    string  `gorm:"default:USD"          json:"currency"`
	GatewayTxID string  `json:"gateway_transaction_id"`
	Status      string  `gorm:"not null"             json:"status"`
	CreatedAt   int64   `gorm:"autoCreateTime"       json:"created_at"`
}
