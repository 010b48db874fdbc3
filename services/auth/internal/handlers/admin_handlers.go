package handlers

import (
	"net/http"

	"github.com/diagnosis/carbonmrv/internal/http/response"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

// ListFarmers pages through registered farmers, newest first (admin only).
func (h *Handlers) ListFarmers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	farmers, total, err := h.admin.ListFarmers(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if farmers == nil {
		farmers = []domain.Farmer{}
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"farmers": farmers,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// UpdateFarmerStatus sets a farmer's verification status (admin only).
func (h *Handlers) UpdateFarmerStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.FarmerStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	farmer, err := h.admin.UpdateFarmerStatus(r.Context(), currentUser(r).ID(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"farmer":  farmer,
	})
}
