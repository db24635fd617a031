package checkin_api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/models"
	"ms-checkin/internal/registry"
)

// Station and zone CRUD. Counter and activity fields are read-only here;
// only the redemption path moves them.

func (h *Handler) CreateStation(w http.ResponseWriter, r *http.Request) {
	var station models.CheckinStation
	if err := json.NewDecoder(r.Body).Decode(&station); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.Registry.CreateStation(r.Context(), station)
	if err != nil {
		if errors.Is(err, registry.ErrZoneNotFound) {
			http.Error(w, "Unknown access zone: "+err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create station: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Logger.LogStation(created.ID, "station created: "+created.Name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	station, err := h.Registry.GetStation(r.Context(), chi.URLParam(r, "stationID"))
	if err != nil {
		if errors.Is(err, registry.ErrStationNotFound) {
			http.Error(w, "Station not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch station: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(station)
}

func (h *Handler) UpdateStation(w http.ResponseWriter, r *http.Request) {
	var update models.CheckinStation
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.Registry.UpdateStation(r.Context(), chi.URLParam(r, "stationID"), update)
	if err != nil {
		if errors.Is(err, registry.ErrStationNotFound) {
			http.Error(w, "Station not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, registry.ErrZoneNotFound) {
			http.Error(w, "Unknown access zone: "+err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to update station: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.Logger.LogStation(updated.ID, "station updated: "+updated.Name)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.Registry.ListStations(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "Failed to fetch stations: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stations)
}

func (h *Handler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var zone models.AccessZone
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.Registry.CreateZone(r.Context(), zone)
	if err != nil {
		http.Error(w, "Failed to create zone: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Handler) GetZone(w http.ResponseWriter, r *http.Request) {
	zone, err := h.Registry.GetZone(r.Context(), chi.URLParam(r, "zoneID"))
	if err != nil {
		if errors.Is(err, registry.ErrZoneNotFound) {
			http.Error(w, "Zone not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch zone: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(zone)
}

func (h *Handler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	var update models.AccessZone
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.Registry.UpdateZone(r.Context(), chi.URLParam(r, "zoneID"), update)
	if err != nil {
		if errors.Is(err, registry.ErrZoneNotFound) {
			http.Error(w, "Zone not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update zone: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.Registry.ListZones(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "Failed to fetch zones: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(zones)
}
