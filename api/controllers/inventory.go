package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	"github.com/stockroomhq/stockroom-backend/internal/inventory"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// The bulk endpoint keeps the legacy camelCase keys while the rest of the
// inventory surface uses snake_case. Existing clients depend on both.
type bulkUpdateEntry struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity"`
}

type bulkUpdateRequest struct {
	Updates []bulkUpdateEntry `json:"updates" validate:"required,min=1,dive"`
}

type restockRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type inventoryRowResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Note      *string   `json:"note"`
	Quantity  int       `json:"quantity"`
	CreatedAt string    `json:"created_at"`
}

// ListInventory returns all inventory rows joined with their product.
func ListInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]inventoryRowResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, inventoryRowResponse{
				ID:        row.ID,
				ProductID: row.ProductID,
				Name:      row.Name,
				Note:      row.Note,
				Quantity:  row.Quantity,
				CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		responses.WriteJSON(w, http.StatusOK, out)
	}
}

// Restock merges quantity into the product's inventory row, creating it when
// absent. 200 on merge, 201 on create.
func Restock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		result, err := svc.Restock(r.Context(), productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Created {
			responses.WriteCreated(w, result.ItemID.String())
			return
		}
		responses.WriteJSON(w, http.StatusOK, map[string]string{"id": result.ItemID.String()})
	}
}

// BulkAdjust applies a batch of signed deltas in one atomic unit.
func BulkAdjust(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload bulkUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deltas := make([]inventory.Delta, 0, len(payload.Updates))
		for _, entry := range payload.Updates {
			productID, err := uuid.Parse(entry.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			deltas = append(deltas, inventory.Delta{ProductID: productID, Quantity: entry.Quantity})
		}

		if err := svc.BulkAdjust(r.Context(), deltas); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w)
	}
}

// SetQuantity overwrites one row's quantity with an absolute positive value.
func SetQuantity(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid inventory id"))
			return
		}

		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetQuantity(r.Context(), id, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w)
	}
}

// DeleteInventory removes one inventory row.
func DeleteInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid inventory id"))
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
