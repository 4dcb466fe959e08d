package inventory

import (
	"database/sql"
	"fmt"

	"github.com/avans-mx/avanbot/internal/models"
)

// scanParts scans id/name/code part rows.
func scanParts(rows *sql.Rows) ([]models.Part, error) {
	var parts []models.Part
	for rows.Next() {
		var p models.Part
		if err := rows.Scan(&p.ID, &p.Name, &p.Code); err != nil {
			return nil, fmt.Errorf("scan part row failed: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate part rows failed: %w", err)
	}
	return parts, nil
}

// scanAvailability scans warehouse/quantity rows.
func scanAvailability(rows *sql.Rows) ([]models.Availability, error) {
	var avail []models.Availability
	for rows.Next() {
		var a models.Availability
		if err := rows.Scan(&a.Warehouse, &a.Quantity); err != nil {
			return nil, fmt.Errorf("scan availability row failed: %w", err)
		}
		avail = append(avail, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability rows failed: %w", err)
	}
	return avail, nil
}

// scanOrders scans full order rows.
func scanOrders(rows *sql.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.DocNum, &o.CardName, &o.PaidToDate, &o.InvoicedToDate, &o.DeliveredToDate); err != nil {
			return nil, fmt.Errorf("scan order row failed: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows failed: %w", err)
	}
	return orders, nil
}

// scanInteractions scans analytics rows.
func scanInteractions(rows *sql.Rows) ([]models.Interaction, error) {
	var ins []models.Interaction
	for rows.Next() {
		var in models.Interaction
		if err := rows.Scan(&in.ID, &in.Type, &in.Message, &in.Response, &in.Context, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("scan interaction row failed: %w", err)
		}
		ins = append(ins, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows failed: %w", err)
	}
	return ins, nil
}
