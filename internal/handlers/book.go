package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/models"
	"github.com/Skotchmaster/ebook_shop/internal/mykafka"
	"github.com/Skotchmaster/ebook_shop/internal/util"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type BookHandler struct {
	DB        *gorm.DB
	Producer  *mykafka.Producer
	JWTSecret []byte
}

func errorResponse(c echo.Context, code int, err error) error {
	return c.JSON(code, Response{
		Status:  "error",
		Message: err.Error(),
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *BookHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "book_events", fmt.Sprint(event["bookID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *BookHandler) GetBook(c echo.Context) error {
	idParam := c.Param("id")
	id, err := strconv.Atoi(idParam)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var book models.Book
	if err := h.DB.Where("id = ? AND is_published = ?", id, true).First(&book).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "book not found"})
	}

	return c.JSON(http.StatusOK, book)
}

func (h *BookHandler) GetBooks(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Book{}).Where("is_published = ?", true).Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, err)
	}

	var items []models.Book
	if err := h.DB.Where("is_published = ?", true).
		Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *BookHandler) CreateBook(c echo.Context) error {
	var req struct {
		Title       string  `json:"title"`
		Author      string  `json:"author"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		FilePath    string  `json:"file_path"`
		FileFormat  string  `json:"file_format"`
		IsPublished bool    `json:"is_published"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	book := models.Book{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Price:       req.Price,
		FilePath:    req.FilePath,
		FileFormat:  req.FileFormat,
		IsPublished: req.IsPublished,
	}

	if err := h.DB.Create(&book).Error; err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	h.publish(c, map[string]any{
		"type":   "book_created",
		"bookID": book.ID,
		"title":  book.Title,
	})

	return c.JSON(http.StatusCreated, book)
}

func (h *BookHandler) PatchBook(c echo.Context) error {
	idParam := c.Param("id")
	id, err := strconv.Atoi(idParam)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req struct {
		Title       string  `json:"title"`
		Author      string  `json:"author"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		FilePath    string  `json:"file_path"`
		FileFormat  string  `json:"file_format"`
		IsPublished bool    `json:"is_published"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	var book models.Book
	if err := h.DB.First(&book, id).Error; err != nil {
		return c.JSON(http.StatusNotFound, err)
	}

	book.Title = req.Title
	book.Author = req.Author
	book.Description = req.Description
	book.Price = req.Price
	book.FilePath = req.FilePath
	book.FileFormat = req.FileFormat
	book.IsPublished = req.IsPublished

	if err := h.DB.Save(&book).Error; err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	h.publish(c, map[string]any{
		"type":   "book_updated",
		"bookID": book.ID,
		"title":  book.Title,
	})

	return c.JSON(http.StatusOK, book)
}

func (h *BookHandler) DeleteBook(c echo.Context) error {
	idParam := c.Param("id")
	id, err := strconv.Atoi(idParam)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := h.DB.Delete(&models.Book{}, id).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	h.publish(c, map[string]any{
		"type":   "book_deleted",
		"bookID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
