package billing

import (
	"github.com/inmobiliaria/backend/internal/domain/shared"
)

// Customer is the buyer record owned by the CRM. The core only links gateway
// customers to it and toggles its entitlement.
type Customer struct {
	shared.BaseEntity
	Name               string `gorm:"column:nombre;type:varchar(200);not null"`
	Email              string `gorm:"type:varchar(255);index"`
	ExternalCustomerID string `gorm:"type:varchar(255);index"`
	EntitlementActive  bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Customer) TableName() string {
	return "clientes"
}

// LinkExternalCustomer stores the gateway customer id if none is set yet
func (c *Customer) LinkExternalCustomer(externalID string) bool {
	if externalID == "" || c.ExternalCustomerID == externalID {
		return false
	}
	if c.ExternalCustomerID != "" {
		return false
	}
	c.ExternalCustomerID = externalID
	c.Touch()
	return true
}

// SetEntitlement toggles the customer's subscription entitlement
func (c *Customer) SetEntitlement(active bool) bool {
	if c.EntitlementActive == active {
		return false
	}
	c.EntitlementActive = active
	c.Touch()
	return true
}
