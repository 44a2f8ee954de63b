package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/handlers"
	"github.com/Skotchmaster/ebook_shop/internal/handlers/cart"
	"github.com/Skotchmaster/ebook_shop/internal/handlers/download"
	"github.com/Skotchmaster/ebook_shop/internal/handlers/order"
	"github.com/Skotchmaster/ebook_shop/internal/service"
)

type Deps struct {
	DB              *gorm.DB
	AuthHandler     *handlers.AuthHandler
	BookHandler     *handlers.BookHandler
	AddressHandler  *handlers.AddressHandler
	CartHandler     *cart.CartHandler
	OrderHandler    *order.OrderHandler
	DownloadHandler *download.DownloadHandler
	ServiceHandler  *service.TokenService
	SearchHandler   *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	admin := v1.Group("/admin", d.ServiceHandler.AutoRefreshMiddlewareAdmin)

	admin.POST("/books", d.BookHandler.CreateBook)
	admin.PATCH("/books/:id", d.BookHandler.PatchBook)
	admin.DELETE("/books/:id", d.BookHandler.DeleteBook)

	books := v1.Group("/books")

	books.GET("/:id", d.BookHandler.GetBook)
	books.GET("", d.BookHandler.GetBooks)

	cartGroup := v1.Group("/cart", d.ServiceHandler.AutoRefreshMiddleware)

	cartGroup.GET("", d.CartHandler.GetCart)
	cartGroup.POST("", d.CartHandler.AddToCart)
	cartGroup.DELETE("/:id", d.CartHandler.DeleteOneFromCart)
	cartGroup.DELETE("/:id/all", d.CartHandler.DeleteAllFromCart)

	addresses := v1.Group("/addresses", d.ServiceHandler.AutoRefreshMiddleware)

	addresses.GET("", d.AddressHandler.ListAddresses)
	addresses.POST("", d.AddressHandler.CreateAddress)
	addresses.PATCH("/:id", d.AddressHandler.PatchAddress)
	addresses.DELETE("/:id", d.AddressHandler.DeleteAddress)

	orders := v1.Group("/orders", d.ServiceHandler.AutoRefreshMiddleware)

	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)

	// Fulfillment surface. The paths match what issued link URLs point at.
	api := e.Group("/api", d.ServiceHandler.AutoRefreshMiddleware)

	api.POST("/checkout", d.OrderHandler.Checkout)
	api.GET("/library", d.DownloadHandler.Library)
	api.POST("/library/:id/download-link", d.DownloadHandler.GenerateLink)
	api.GET("/download/:token", d.DownloadHandler.Download)
}
