package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{StatusPending, StatusProcessing, StatusShipped, StatusDelivered}

// ParseOrderStatus accepts the canonical upper-case name; matching is case-insensitive.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range OrderStatuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"` // URL or /uploads/ path
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Password    string    `json:"-"` // bcrypt hash
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Role        Role      `json:"role"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	ZipCode     string    `json:"zipCode"`
	Country     string    `json:"country"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Order is the aggregate root. User and Items[].Product are only set once the
// order has been hydrated and reflect current data, not creation-time data.
type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	User            *User           `json:"user,omitempty"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"-"`
	ProductID int64           `json:"productId"`
	Product   *Product        `json:"product,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"` // snapshot at order time
}

// LineTotal is price × quantity using the snapshot price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type DashboardStats struct {
	TotalProducts    int64                           `json:"totalProducts"`
	TotalOrders      int64                           `json:"totalOrders"`
	TotalUsers       int64                           `json:"totalUsers"`
	PendingOrders    int64                           `json:"pendingOrders"`
	ProcessingOrders int64                           `json:"processingOrders"`
	ShippedOrders    int64                           `json:"shippedOrders"`
	DeliveredOrders  int64                           `json:"deliveredOrders"`
	TotalRevenue     decimal.Decimal                 `json:"totalRevenue"`
	RevenueByStatus  map[OrderStatus]decimal.Decimal `json:"revenueByStatus"`
	TopProducts      []ProductSales                  `json:"topProducts"`
}

type ProductSales struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	UnitsSold int64  `json:"unitsSold"`
}
