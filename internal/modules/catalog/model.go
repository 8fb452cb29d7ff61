// README: Material and vehicle type reference data.
package catalog

import (
	"github.com/shopspring/decimal"

	"haulbook/internal/types"
)

type Material struct {
	ID     types.ID
	Name   string
	Source string
	Unit   string
}

type VehicleType struct {
	ID          types.ID
	Name        string
	CapacityTon decimal.Decimal
}
