package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/logging"
	"github.com/Skotchmaster/ebook_shop/internal/models"
)

type CheckoutResult struct {
	Order     models.Order          `json:"order"`
	Items     []models.OrderItem    `json:"items"`
	Purchases []models.PurchaseItem `json:"purchases"`
	Payment   models.Payment        `json:"payment"`
}

// Checkout turns the user's cart into a paid order: order, order items,
// purchase grants, payment record and cart cleanup commit as one
// transaction, so a failure never leaves the user charged without grants.
//
// The payment gateway is a stub for now, the order goes straight to "paid".
// A real gateway would hold the order in "pending" until its callback.
func (s *Service) Checkout(ctx context.Context, userID uint, billingAddressID *uint, paymentMethod string) (*CheckoutResult, error) {
	var out CheckoutResult

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cartItems []models.CartItem
		if err := tx.Where("user_id = ?", userID).Find(&cartItems).Error; err != nil {
			return err
		}
		if len(cartItems) == 0 {
			return ErrEmptyCart
		}

		var addrID *uint
		if billingAddressID != nil {
			var addr models.Address
			err := tx.Where("id = ? AND user_id = ?", *billingAddressID, userID).First(&addr).Error
			if err == nil {
				addrID = &addr.ID
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		// Totals come from the cart's price snapshots, not the live
		// catalog prices.
		var total float64
		for _, it := range cartItems {
			total += it.UnitPrice * float64(it.Quantity)
		}

		now := s.now()
		order := models.Order{
			UserID:           userID,
			Number:           newOrderNumber(),
			Status:           models.OrderStatusPaid,
			TotalAmount:      total,
			Currency:         "USD",
			PaymentMethod:    paymentMethod,
			BillingAddressID: addrID,
			PaidAt:           &now,
			CreatedAt:        now,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		orderItems := make([]models.OrderItem, 0, len(cartItems))
		for _, it := range cartItems {
			oi := models.OrderItem{
				OrderID:   order.ID,
				UserID:    userID,
				BookID:    it.BookID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Subtotal:  it.UnitPrice * float64(it.Quantity),
			}
			if err := tx.Create(&oi).Error; err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			orderItems = append(orderItems, oi)
		}

		purchases, err := s.Grant(tx, userID, orderItems)
		if err != nil {
			return err
		}

		payment := models.Payment{
			OrderID:  order.ID,
			Gateway:  models.PaymentGatewayStub,
			Amount:   total,
			Currency: "USD",
			Status:   models.PaymentStatusSuccess,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		out = CheckoutResult{
			Order:     order,
			Items:     orderItems,
			Purchases: purchases,
			Payment:   payment,
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	logging.FromContext(ctx).Info("order created",
		"order_id", out.Order.ID,
		"number", out.Order.Number,
		"user_id", userID,
		"total", out.Order.TotalAmount,
	)

	return &out, nil
}

func newOrderNumber() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(hex[:12])
}
