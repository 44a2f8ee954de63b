package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/models"
)

type AddressHandler struct {
	DB        *gorm.DB
	JWTSecret []byte
}

type addressRequest struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"is_default"`
}

func (h *AddressHandler) ListAddresses(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var addresses []models.Address
	if err := h.DB.Where("user_id = ?", userID).Order("id ASC").Find(&addresses).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, addresses)
}

func (h *AddressHandler) CreateAddress(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	if req.Line1 == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "line1 is required"})
	}

	addr := models.Address{
		UserID:     userID,
		FullName:   req.FullName,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	}

	// At most one default address per user: making this one the default
	// clears the flag on the rest in the same transaction.
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if addr.IsDefault {
			if err := tx.Model(&models.Address{}).
				Where("user_id = ?", userID).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&addr).Error
	})
	if txErr != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, txErr.Error())
	}

	return c.JSON(http.StatusCreated, addr)
}

func (h *AddressHandler) PatchAddress(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	var addr models.Address
	if err := h.DB.Where("id = ? AND user_id = ?", id, userID).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "address not found"})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}

	if req.FullName != "" {
		addr.FullName = req.FullName
	}
	if req.Line1 != "" {
		addr.Line1 = req.Line1
	}
	if req.Line2 != "" {
		addr.Line2 = req.Line2
	}
	if req.City != "" {
		addr.City = req.City
	}
	if req.PostalCode != "" {
		addr.PostalCode = req.PostalCode
	}
	if req.Country != "" {
		addr.Country = req.Country
	}

	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if req.IsDefault && !addr.IsDefault {
			if err := tx.Model(&models.Address{}).
				Where("user_id = ? AND id <> ?", userID, addr.ID).
				Update("is_default", false).Error; err != nil {
				return err
			}
			addr.IsDefault = true
		}
		return tx.Save(&addr).Error
	})
	if txErr != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, txErr.Error())
	}

	return c.JSON(http.StatusOK, addr)
}

func (h *AddressHandler) DeleteAddress(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	if err := h.DB.Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Address{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
