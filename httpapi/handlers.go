package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-social-sync/core"
)

const maxBodyBytes = 64 << 10

func (s *Server) storeCredentials(w http.ResponseWriter, r *http.Request) {
	var body storeCredentialsBody
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, core.NewFieldValidationError("body", "request body must be a JSON credentials object"))
		return
	}
	id, err := s.service.StoreCredentials(r.Context(), core.StoreCredentialsRequest{
		TenantID:    tenantID(r),
		AppID:       body.AppID,
		AppSecret:   body.AppSecret,
		RedirectURI: body.RedirectURI,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, storedCredentialsView{ID: id})
}

func (s *Server) activeCredentials(w http.ResponseWriter, r *http.Request) {
	set, err := s.service.GetActiveCredentials(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCredentialView(set))
}

// beginAuth redirects to the provider unless format=json is requested.
func (s *Server) beginAuth(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.BeginAuth(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		writeJSON(w, http.StatusOK, out)
		return
	}
	http.Redirect(w, r, out.URL, http.StatusFound)
}

func (s *Server) completeAuth(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := strings.TrimSpace(query.Get("error")); providerErr != "" {
		message := strings.TrimSpace(query.Get("error_description"))
		if message == "" {
			message = providerErr
		}
		writeError(w, core.NewFieldValidationError("error", "authorization was not granted: "+message))
		return
	}
	out, err := s.service.CompleteAuth(r.Context(), core.CompleteAuthRequest{
		TenantID: tenantID(r),
		Code:     query.Get("code"),
		State:    query.Get("state"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(out.Account))
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Disconnect(r.Context(), tenantID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listContent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, core.NewFieldValidationError("limit", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	page, err := s.service.ListContent(r.Context(), core.ListContentRequest{
		TenantID: tenantID(r),
		Cursor:   query.Get("cursor"),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if page.Items == nil {
		page.Items = []core.ContentItem{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.TriggerSync(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncView{StoredCount: out.StoredCount, HasMore: out.HasMore})
}

func tenantID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "tenantID"))
}
