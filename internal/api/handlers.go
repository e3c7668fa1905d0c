package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/auth"
	awsconn "github.com/ebsight/ebsight/internal/connectors/aws"
	"github.com/ebsight/ebsight/internal/models"
	"github.com/ebsight/ebsight/internal/store"
)

var awsAccountIDPattern = regexp.MustCompile(`^\d{12}$`)

type registerAccountRequest struct {
	Alias        string   `json:"alias"`
	AWSAccountID string   `json:"awsAccountId"`
	Regions      []string `json:"regions"`
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	accounts, err := s.store.ListCloudAccounts(r.Context(), claims.TenantID, includeInactive)
	if err != nil {
		s.logger.Error("failed to list cloud accounts", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "list_failed", "Failed to list accounts")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, accounts, &apiMeta{Total: len(accounts)})
}

// registerAccount onboards a customer AWS account. The external id and role
// ARN are derived server-side; clients never choose either value.
func (s *Server) registerAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	var req registerAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.Alias == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "alias is required")
		return
	}
	if !awsAccountIDPattern.MatchString(req.AWSAccountID) {
		respondError(w, http.StatusBadRequest, "invalid_request", "awsAccountId must be a 12-digit AWS account id")
		return
	}

	regions := req.Regions
	if len(regions) == 0 {
		regions = []string{s.cfg.AWS.Region}
	}

	account := &models.CloudAccount{
		TenantID:     claims.TenantID,
		Alias:        req.Alias,
		AWSAccountID: req.AWSAccountID,
		RoleARN:      awsconn.RoleARN(req.AWSAccountID, s.cfg.AWS.ScannerRoleName),
		ExternalID:   s.extid.Generate(claims.TenantID, req.AWSAccountID),
		Regions:      regions,
	}

	if err := s.store.RegisterCloudAccount(r.Context(), account, claims.Email); err != nil {
		if errors.Is(err, store.ErrDuplicateAccount) {
			respondError(w, http.StatusConflict, "duplicate_account", "AWS account already registered for this tenant")
			return
		}
		s.logger.Error("failed to register cloud account", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "register_failed", "Failed to register account")
		return
	}

	respondJSON(w, http.StatusCreated, account)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid account ID")
		return
	}

	account, err := s.store.GetCloudAccount(r.Context(), claims.TenantID, accountID)
	if err != nil {
		s.logger.Error("failed to get cloud account", "error", err, "account_id", accountID)
		respondError(w, http.StatusInternalServerError, "get_failed", "Failed to get account")
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, "not_found", "Account not found")
		return
	}

	respondJSON(w, http.StatusOK, account)
}

func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid account ID")
		return
	}

	if err := s.store.DeactivateCloudAccount(r.Context(), claims.TenantID, accountID, claims.Email); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Account not found")
			return
		}
		s.logger.Error("failed to deactivate cloud account", "error", err, "account_id", accountID)
		respondError(w, http.StatusInternalServerError, "deactivate_failed", "Failed to deactivate account")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// triggerScan queues a scan for one registered account. The response is
// 202: the scan runs on a worker, and its record tracks the outcome.
func (s *Server) triggerScan(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid account ID")
		return
	}

	account, err := s.store.GetCloudAccount(r.Context(), claims.TenantID, accountID)
	if err != nil {
		s.logger.Error("failed to get cloud account", "error", err, "account_id", accountID)
		respondError(w, http.StatusInternalServerError, "get_failed", "Failed to get account")
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, "not_found", "Account not found")
		return
	}
	if !account.Active {
		respondError(w, http.StatusConflict, "account_inactive", "Account is deactivated")
		return
	}

	rec := &models.ScanRecord{
		ScanID:         uuid.New(),
		TenantID:       claims.TenantID,
		CloudAccountID: account.ID,
		Status:         models.ScanStatusQueued,
	}
	if err := s.store.CreateScanRecord(r.Context(), rec); err != nil {
		s.logger.Error("failed to create scan record", "error", err, "account_id", accountID)
		respondError(w, http.StatusInternalServerError, "scan_failed", "Failed to create scan")
		return
	}

	scanReq := &models.ScanRequest{
		ScanID:     rec.ScanID.String(),
		TenantID:   claims.TenantID,
		AccountID:  account.AWSAccountID,
		RoleARN:    account.RoleARN,
		ExternalID: account.ExternalID,
		Regions:    account.Regions,
	}

	// Manual scans enqueue at priority 1 so they run ahead of the
	// scheduler's nightly sweep.
	if err := s.queue.Enqueue(r.Context(), scanReq, 1); err != nil {
		s.logger.Error("failed to enqueue scan", "error", err, "scan_id", rec.ScanID)
		respondError(w, http.StatusInternalServerError, "enqueue_failed", "Failed to queue scan")
		return
	}

	audit := &models.AuditLogEntry{
		TenantID:     claims.TenantID,
		Actor:        claims.Email,
		Action:       models.AuditScanRequested,
		ResourceType: "scan",
		ResourceID:   rec.ScanID.String(),
		Details: models.JSONB{
			"aws_account_id": account.AWSAccountID,
			"regions":        account.Regions,
		},
	}
	if err := s.store.InsertAuditEntry(r.Context(), audit); err != nil {
		// The scan is already queued; failing the request now would
		// leave the caller retrying a scan that will run anyway.
		s.logger.Error("failed to write audit entry", "error", err, "scan_id", rec.ScanID)
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"scan_id": rec.ScanID.String(),
		"status":  string(models.ScanStatusQueued),
	})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	limit, offset := parseLimitOffset(r)

	scans, err := s.store.ListScanRecords(r.Context(), claims.TenantID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list scan records", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "list_failed", "Failed to list scans")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, scans, &apiMeta{Total: len(scans), Limit: limit, Offset: offset})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	scanID, err := uuid.Parse(chi.URLParam(r, "scanID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid scan ID")
		return
	}

	rec, err := s.store.GetScanRecord(r.Context(), claims.TenantID, scanID)
	if err != nil {
		s.logger.Error("failed to get scan record", "error", err, "scan_id", scanID)
		respondError(w, http.StatusInternalServerError, "get_failed", "Failed to get scan")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "not_found", "Scan not found")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) listVolumes(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	filters, err := volumeFiltersFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	volumes, err := s.store.ListVolumes(r.Context(), claims.TenantID, filters)
	if err != nil {
		s.logger.Error("failed to list volumes", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "list_failed", "Failed to list volumes")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, volumes, &apiMeta{Total: len(volumes), Limit: filters.Limit, Offset: filters.Offset})
}

func (s *Server) volumeSummary(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	summary, err := s.store.GetVolumeSummary(r.Context(), claims.TenantID)
	if err != nil {
		s.logger.Error("failed to build volume summary", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "summary_failed", "Failed to build summary")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	qs := r.URL.Query()
	filters := store.SnapshotFilters{}
	filters.Limit, filters.Offset = parseLimitOffset(r)

	if v := qs.Get("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "account_id must be a UUID")
			return
		}
		filters.CloudAccountID = &id
	}
	if v := qs.Get("region"); v != "" {
		filters.Region = &v
	}
	if v := qs.Get("volume_id"); v != "" {
		filters.VolumeID = &v
	}

	snapshots, err := s.store.ListSnapshots(r.Context(), claims.TenantID, filters)
	if err != nil {
		s.logger.Error("failed to list snapshots", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "list_failed", "Failed to list snapshots")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, snapshots, &apiMeta{Total: len(snapshots), Limit: filters.Limit, Offset: filters.Offset})
}

func (s *Server) listAuditEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	limit, offset := parseLimitOffset(r)

	entries, err := s.store.ListAuditEntries(r.Context(), claims.TenantID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "list_failed", "Failed to list audit entries")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, entries, &apiMeta{Total: len(entries), Limit: limit, Offset: offset})
}

func (s *Server) inventoryReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication")
		return
	}

	pdf, err := s.reports.InventoryPDF(r.Context(), claims.TenantID)
	if err != nil {
		s.logger.Error("failed to generate inventory report", "error", err, "tenant_id", claims.TenantID)
		respondError(w, http.StatusInternalServerError, "report_failed", "Failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="ebs-inventory.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func volumeFiltersFromQuery(r *http.Request) (store.VolumeFilters, error) {
	qs := r.URL.Query()
	filters := store.VolumeFilters{}
	filters.Limit, filters.Offset = parseLimitOffset(r)

	if v := qs.Get("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filters, fmt.Errorf("account_id must be a UUID")
		}
		filters.CloudAccountID = &id
	}
	if v := qs.Get("region"); v != "" {
		filters.Region = &v
	}
	if v := qs.Get("state"); v != "" {
		filters.State = &v
	}
	if v := qs.Get("type"); v != "" {
		filters.VolumeType = &v
	}
	if v := qs.Get("encrypted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filters, fmt.Errorf("encrypted must be a boolean")
		}
		filters.Encrypted = &b
	}
	if v := qs.Get("attached"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filters, fmt.Errorf("attached must be a boolean")
		}
		filters.Attached = &b
	}
	if qs.Get("sort") == "cost" {
		filters.SortByCost = true
	}

	return filters, nil
}

func parseLimitOffset(r *http.Request) (int, int) {
	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
