package fulfillment

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/logging"
	"github.com/Skotchmaster/ebook_shop/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")      // 404
	ErrExpired       = errors.New("expired")        // 400
	ErrLimitExceeded = errors.New("limit exceeded") // 400
	ErrEmptyCart     = errors.New("cart is empty")  // 400
)

type Config struct {
	// BaseURL is used to build the absolute retrieval URL for issued links.
	BaseURL string
	// LinkTTL is the validity horizon of an issued download link.
	LinkTTL time.Duration
	// OneTimeLinks makes every issued link single-use: fulfillment deletes
	// it in the same transaction that records the download.
	OneTimeLinks bool
	// DefaultDownloadLimit is applied to every granted PurchaseItem.
	// Zero means unlimited.
	DefaultDownloadLimit uint
}

type Service struct {
	DB  *gorm.DB
	Cfg Config

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Grant creates one PurchaseItem per order item inside the caller's
// transaction, so the grant commits or rolls back together with the order.
func (s *Service) Grant(tx *gorm.DB, userID uint, items []models.OrderItem) ([]models.PurchaseItem, error) {
	var limit *uint
	if s.Cfg.DefaultDownloadLimit > 0 {
		l := s.Cfg.DefaultDownloadLimit
		limit = &l
	}

	purchases := make([]models.PurchaseItem, 0, len(items))
	for _, it := range items {
		p := models.PurchaseItem{
			UserID:        userID,
			BookID:        it.BookID,
			OrderItemID:   it.ID,
			DownloadLimit: limit,
			DownloadsUsed: 0,
			IsActive:      true,
		}
		if err := tx.Create(&p).Error; err != nil {
			return nil, fmt.Errorf("create purchase item: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, nil
}

type IssuedLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueLink creates a fresh short-lived download link for the purchase item.
// Links are never renewed, every call issues a new token.
func (s *Service) IssueLink(ctx context.Context, purchaseItemID, userID uint) (*IssuedLink, error) {
	var item models.PurchaseItem
	err := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ? AND is_active = ?", purchaseItemID, userID, true).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: purchase item %d", ErrNotFound, purchaseItemID)
		}
		return nil, err
	}

	if !item.CanDownload() {
		return nil, fmt.Errorf("%w: purchase item %d", ErrLimitExceeded, item.ID)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	link := models.DownloadLink{
		PurchaseItemID: item.ID,
		Token:          token,
		ExpiresAt:      s.now().Add(s.Cfg.LinkTTL),
		OneTime:        s.Cfg.OneTimeLinks,
	}
	if err := s.DB.WithContext(ctx).Create(&link).Error; err != nil {
		return nil, fmt.Errorf("create download link: %w", err)
	}

	logging.FromContext(ctx).Info("download link issued",
		"purchase_item_id", item.ID,
		"user_id", userID,
		"expires_at", link.ExpiresAt,
	)

	return &IssuedLink{
		Token:     link.Token,
		URL:       fmt.Sprintf("%s/api/download/%s", strings.TrimRight(s.Cfg.BaseURL, "/"), link.Token),
		ExpiresAt: link.ExpiresAt,
	}, nil
}

// newToken returns 256 bits from crypto/rand as a URL-safe string.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type Delivery struct {
	File     *os.File
	Filename string
	Format   string
}

// Fulfill validates a presented token and, on success, records the download
// and hands back an open file for streaming. The audit log write, the counter
// increment and the one-time link deletion commit as one transaction; the
// counter update is guarded by the limit predicate so two concurrent requests
// cannot both pass the check and over-issue downloads.
func (s *Service) Fulfill(ctx context.Context, token string, userID uint, ip, userAgent string) (*Delivery, error) {
	var (
		book models.Book
		file *os.File
	)

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link models.DownloadLink
		if err := tx.Where("token = ?", token).First(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: link", ErrNotFound)
			}
			return err
		}

		// Ownership failures look identical to unknown tokens so that a
		// valid token never confirms the existence of someone else's link.
		var item models.PurchaseItem
		err := tx.Where("id = ? AND user_id = ?", link.PurchaseItemID, userID).First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: link", ErrNotFound)
			}
			return err
		}

		if !link.IsValid(s.now()) {
			return fmt.Errorf("%w: link", ErrExpired)
		}

		if !item.CanDownload() {
			return fmt.Errorf("%w: purchase item %d", ErrLimitExceeded, item.ID)
		}

		if err := tx.First(&book, item.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: book", ErrNotFound)
			}
			return err
		}
		if book.FilePath == "" {
			return fmt.Errorf("%w: file", ErrNotFound)
		}

		// Open before the writes: a purchasable but fileless entry must
		// not consume a download.
		f, err := os.Open(book.FilePath)
		if err != nil {
			return fmt.Errorf("%w: file", ErrNotFound)
		}
		file = f

		res := tx.Model(&models.PurchaseItem{}).
			Where("id = ? AND is_active = ? AND (download_limit IS NULL OR downloads_used < download_limit)",
				item.ID, true).
			Update("downloads_used", gorm.Expr("downloads_used + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race against another request for the last download.
			return fmt.Errorf("%w: purchase item %d", ErrLimitExceeded, item.ID)
		}

		logEntry := models.DownloadLog{
			PurchaseItemID: item.ID,
			IPAddress:      ip,
			UserAgent:      userAgent,
			DownloadedAt:   s.now(),
		}
		if err := tx.Create(&logEntry).Error; err != nil {
			return err
		}

		// Consumed one-time links are deleted, not flagged: presenting the
		// token again resolves to nothing and reports ErrNotFound, the same
		// answer an attacker probing random tokens gets.
		if link.OneTime {
			if err := tx.Delete(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		if file != nil {
			file.Close()
		}
		return nil, txErr
	}

	logging.FromContext(ctx).Info("download fulfilled",
		"user_id", userID,
		"book_id", book.ID,
		"filename", path.Base(book.FilePath),
	)

	return &Delivery{
		File:     file,
		Filename: path.Base(book.FilePath),
		Format:   book.FileFormat,
	}, nil
}
