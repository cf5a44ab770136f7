package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"meterscope/internal/audit"
	catalog "meterscope/internal/catalog/domain"
	"meterscope/internal/observability/metrics"
)

// Handler serves client, site and meter catalog endpoints.
type Handler struct {
	clients     catalog.ClientRepository
	sites       catalog.SiteRepository
	meters      catalog.MeterRepository
	auditLogger audit.Logger
}

// NewHandler constructs a Handler.
func NewHandler(clients catalog.ClientRepository, sites catalog.SiteRepository, meters catalog.MeterRepository, auditLogger audit.Logger) (*Handler, error) {
	if clients == nil {
		return nil, errors.New("catalog handler: nil client repository")
	}
	if sites == nil {
		return nil, errors.New("catalog handler: nil site repository")
	}
	if meters == nil {
		return nil, errors.New("catalog handler: nil meter repository")
	}
	return &Handler{clients: clients, sites: sites, meters: meters, auditLogger: auditLogger}, nil
}

type clientDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type siteDTO struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type meterDTO struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Number    string    `json:"number"`
	MeterType string    `json:"meter_type,omitempty"`
	Tariff    string    `json:"tariff,omitempty"`
	RatingKVA float64   `json:"rating_kva,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ServeClients routes /api/v1/clients and /api/v1/clients/{id}.
func (h *Handler) ServeClients(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r.URL.Path, "/api/v1/clients")
	switch {
	case id == "" && r.Method == http.MethodGet:
		list, err := h.clients.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]clientDTO, 0, len(list))
		for _, c := range list {
			out = append(out, clientToDTO(c))
		}
		writeJSON(w, out)
	case id == "" && r.Method == http.MethodPost:
		h.saveClient(w, r)
	case id != "" && r.Method == http.MethodGet:
		client, err := h.clients.Get(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if client == nil {
			http.Error(w, "client not found", http.StatusNotFound)
			return
		}
		writeJSON(w, clientToDTO(*client))
	case id != "" && r.Method == http.MethodDelete:
		if err := h.clients.Delete(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		h.logAudit(r, "client.delete", "client", id, "")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) saveClient(w http.ResponseWriter, r *http.Request) {
	var req clientDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	client := catalog.Client{ID: req.ID, Name: req.Name, ContactEmail: req.ContactEmail}
	if err := client.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.clients.Save(r.Context(), &client); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, clientToDTO(client))
	h.logAudit(r, "client.save", "client", client.ID, "")
}

// ServeSites routes /api/v1/sites and /api/v1/sites/{id}. Listing requires
// a client_id query parameter.
func (h *Handler) ServeSites(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r.URL.Path, "/api/v1/sites")
	switch {
	case id == "" && r.Method == http.MethodGet:
		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			http.Error(w, "client_id required", http.StatusBadRequest)
			return
		}
		list, err := h.sites.ListByClient(r.Context(), clientID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]siteDTO, 0, len(list))
		for _, s := range list {
			out = append(out, siteToDTO(s))
		}
		writeJSON(w, out)
	case id == "" && r.Method == http.MethodPost:
		h.saveSite(w, r)
	case id != "" && r.Method == http.MethodGet:
		site, err := h.sites.Get(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if site == nil {
			http.Error(w, "site not found", http.StatusNotFound)
			return
		}
		writeJSON(w, siteToDTO(*site))
	case id != "" && r.Method == http.MethodDelete:
		if err := h.sites.Delete(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		h.logAudit(r, "site.delete", "site", id, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) saveSite(w http.ResponseWriter, r *http.Request) {
	var req siteDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	site := catalog.Site{ID: req.ID, ClientID: req.ClientID, Name: req.Name, Address: req.Address}
	if err := site.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if client, err := h.clients.Get(r.Context(), site.ClientID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	} else if client == nil {
		http.Error(w, "unknown client: "+site.ClientID, http.StatusBadRequest)
		return
	}
	if err := h.sites.Save(r.Context(), &site); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, siteToDTO(site))
	h.logAudit(r, "site.save", "site", site.ID, site.ID)
}

// ServeMeters routes /api/v1/meters and /api/v1/meters/{id}. Listing
// accepts an optional site_id filter.
func (h *Handler) ServeMeters(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r.URL.Path, "/api/v1/meters")
	switch {
	case id == "" && r.Method == http.MethodGet:
		list, err := h.listMeters(r.Context(), r.URL.Query().Get("site_id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]meterDTO, 0, len(list))
		for _, m := range list {
			out = append(out, meterToDTO(m))
		}
		writeJSON(w, out)
	case id == "" && r.Method == http.MethodPost:
		h.saveMeter(w, r)
	case id != "" && r.Method == http.MethodGet:
		meter, err := h.meters.Get(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if meter == nil {
			http.Error(w, "meter not found", http.StatusNotFound)
			return
		}
		writeJSON(w, meterToDTO(*meter))
	case id != "" && r.Method == http.MethodDelete:
		if err := h.meters.Delete(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		h.logAudit(r, "meter.delete", "meter", id, "")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listMeters(ctx context.Context, siteID string) ([]catalog.Meter, error) {
	if siteID != "" {
		return h.meters.ListBySite(ctx, siteID)
	}
	return h.meters.List(ctx)
}

func (h *Handler) saveMeter(w http.ResponseWriter, r *http.Request) {
	var req meterDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	meter := catalog.Meter{
		ID:        req.ID,
		SiteID:    req.SiteID,
		Number:    req.Number,
		MeterType: req.MeterType,
		Tariff:    req.Tariff,
		RatingKVA: req.RatingKVA,
	}
	if err := meter.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if site, err := h.sites.Get(r.Context(), meter.SiteID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	} else if site == nil {
		http.Error(w, "unknown site: "+meter.SiteID, http.StatusBadRequest)
		return
	}
	if err := h.meters.Save(r.Context(), &meter); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, meterToDTO(meter))
	h.logAudit(r, "meter.save", "meter", meter.ID, meter.SiteID)
}

func (h *Handler) logAudit(r *http.Request, action, targetType, targetID, siteID string) {
	if i := strings.IndexByte(action, '.'); i > 0 {
		metrics.IncCatalogMutation(targetType, action[i+1:])
	}
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		SiteID:     siteID,
		RemoteAddr: audit.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

func clientToDTO(c catalog.Client) clientDTO {
	return clientDTO{ID: c.ID, Name: c.Name, ContactEmail: c.ContactEmail, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func siteToDTO(s catalog.Site) siteDTO {
	return siteDTO{ID: s.ID, ClientID: s.ClientID, Name: s.Name, Address: s.Address, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

func meterToDTO(m catalog.Meter) meterDTO {
	return meterDTO{
		ID:        m.ID,
		SiteID:    m.SiteID,
		Number:    m.Number,
		MeterType: m.MeterType,
		Tariff:    m.Tariff,
		RatingKVA: m.RatingKVA,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func resourceID(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	return rest
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
