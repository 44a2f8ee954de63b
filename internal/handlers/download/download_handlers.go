package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/handlers"
	"github.com/Skotchmaster/ebook_shop/internal/models"
	"github.com/Skotchmaster/ebook_shop/internal/mykafka"
	"github.com/Skotchmaster/ebook_shop/internal/service/fulfillment"
)

type DownloadHandler struct {
	DB        *gorm.DB
	Svc       *fulfillment.Service
	Producer  *mykafka.Producer
	JWTSecret []byte
}

func (h *DownloadHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "download_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

type libraryEntry struct {
	ID            uint        `json:"id"`
	Book          models.Book `json:"book"`
	PurchasedAt   time.Time   `json:"purchased_at"`
	DownloadLimit *uint       `json:"download_limit"`
	DownloadsUsed uint        `json:"downloads_used"`
	IsActive      bool        `json:"is_active"`
	CanDownload   bool        `json:"can_download"`
}

// Library lists the caller's active purchase items with the book summary
// embedded.
func (h *DownloadHandler) Library(c echo.Context) error {
	userID, err := handlers.GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var items []models.PurchaseItem
	if err := h.DB.Where("user_id = ? AND is_active = ?", userID, true).
		Order("purchased_at DESC").
		Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	entries := make([]libraryEntry, 0, len(items))
	for _, item := range items {
		var book models.Book
		if err := h.DB.First(&book, item.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		entries = append(entries, libraryEntry{
			ID:            item.ID,
			Book:          book,
			PurchasedAt:   item.PurchasedAt,
			DownloadLimit: item.DownloadLimit,
			DownloadsUsed: item.DownloadsUsed,
			IsActive:      item.IsActive,
			CanDownload:   item.CanDownload(),
		})
	}

	return c.JSON(http.StatusOK, entries)
}

// GenerateLink issues a fresh short-lived download link for a purchase item.
func (h *DownloadHandler) GenerateLink(c echo.Context) error {
	userID, err := handlers.GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	link, err := h.Svc.IssueLink(c.Request().Context(), uint(id), userID)
	if err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "Not found."})
		case errors.Is(err, fulfillment.ErrLimitExceeded):
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": "Download limit reached."})
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	h.publish(c, map[string]any{
		"type":           "download_link_issued",
		"userID":         userID,
		"purchaseItemID": id,
		"expires_at":     link.ExpiresAt,
	})

	return c.JSON(http.StatusCreated, link)
}

// Download validates the token and streams the book as an attachment.
func (h *DownloadHandler) Download(c echo.Context) error {
	userID, err := handlers.GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	token := c.Param("token")

	delivery, err := h.Svc.Fulfill(
		c.Request().Context(),
		token,
		userID,
		c.RealIP(),
		c.Request().UserAgent(),
	)
	if err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "Not found."})
		case errors.Is(err, fulfillment.ErrExpired):
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": "Download link has expired."})
		case errors.Is(err, fulfillment.ErrLimitExceeded):
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": "Download limit reached."})
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	defer delivery.File.Close()

	h.publish(c, map[string]any{
		"type":     "download_completed",
		"userID":   userID,
		"filename": delivery.Filename,
	})

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", delivery.Filename))
	return c.Stream(http.StatusOK, "application/octet-stream", delivery.File)
}
