package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshots are frozen copies embedded into issued documents so later edits
// to the source rows never alter them. They are stored as JSONB.

type CompanySnapshot struct {
	LegalName string `json:"legal_name"`
	TradeName string `json:"trade_name,omitempty"`
	TaxID     string `json:"tax_id"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Postal    string `json:"postal_code"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	BankName  string `json:"bank_name,omitempty"`
	IBAN      string `json:"iban,omitempty"`
	Registry  string `json:"registry,omitempty"`
}

type BuyerSnapshot struct {
	FullName string `json:"full_name"`
	TaxID    string `json:"tax_id"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Postal   string `json:"postal_code"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

type VehicleSnapshot struct {
	Make              string     `json:"make"`
	Model             string     `json:"model"`
	Version           string     `json:"version,omitempty"`
	Plate             string     `json:"plate,omitempty"`
	VIN               string     `json:"vin,omitempty"`
	FirstRegistration *time.Time `json:"first_registration,omitempty"`
	Mileage           int        `json:"mileage"`
}

// Description is the one-line vehicle text used on invoices.
func (v VehicleSnapshot) Description() string {
	s := v.Make
	for _, part := range []string{v.Model, v.Version} {
		if part != "" {
			if s != "" {
				s += " "
			}
			s += part
		}
	}
	if v.Plate != "" {
		s += " (" + v.Plate + ")"
	}
	if v.VIN != "" {
		s += " VIN " + v.VIN
	}
	return s
}

// Checklist is the documentation handed over with the vehicle.
type Checklist []ChecklistItem

type ChecklistItem struct {
	Label     string `json:"label"`
	Delivered bool   `json:"delivered"`
}

// DefaultDocumentation is the checklist printed when a contract does not
// provide its own.
func DefaultDocumentation() Checklist {
	return Checklist{
		{Label: "Registration certificate"},
		{Label: "Technical inspection card"},
		{Label: "Roadworthiness test (ITV) report"},
		{Label: "Service book"},
		{Label: "Spare keys"},
		{Label: "Owner's manual"},
	}
}

func (c CompanySnapshot) Value() (driver.Value, error) { return jsonValue(c) }
func (c *CompanySnapshot) Scan(src any) error         { return jsonScan(src, c) }
func (b BuyerSnapshot) Value() (driver.Value, error)   { return jsonValue(b) }
func (b *BuyerSnapshot) Scan(src any) error           { return jsonScan(src, b) }
func (v VehicleSnapshot) Value() (driver.Value, error) { return jsonValue(v) }
func (v *VehicleSnapshot) Scan(src any) error         { return jsonScan(src, v) }
func (c Checklist) Value() (driver.Value, error)       { return jsonValue(c) }
func (c *Checklist) Scan(src any) error               { return jsonScan(src, c) }

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	var data []byte
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("unsupported snapshot source %T", src)
	}
	return json.Unmarshal(data, dst)
}
