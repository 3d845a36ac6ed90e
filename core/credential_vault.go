package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// CredentialVault stores per-tenant app credentials encrypted at rest and keeps
// at most one active set per tenant.
type CredentialVault struct {
	cipher   Cipher
	store    CredentialSetStore
	validate *validator.Validate
	now      func() time.Time
}

func NewCredentialVault(cipher Cipher, store CredentialSetStore, now func() time.Time) (*CredentialVault, error) {
	if cipher == nil {
		return nil, NewConfigurationError("credential vault requires a cipher")
	}
	if store == nil {
		return nil, NewConfigurationError("credential vault requires a credential set store")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CredentialVault{
		cipher:   cipher,
		store:    store,
		validate: newCredentialValidator(),
		now:      now,
	}, nil
}

func newCredentialValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("redirect_uri", func(fl validator.FieldLevel) bool {
		return validRedirectURI(fl.Field().String())
	})
	return v
}

// validRedirectURI accepts absolute http(s) URLs without a fragment.
func validRedirectURI(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != "" && parsed.Fragment == ""
}

func (v *CredentialVault) StoreCredentialSet(ctx context.Context, req StoreCredentialsRequest) (CredentialSetSummary, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.AppID = strings.TrimSpace(req.AppID)
	req.AppSecret = strings.TrimSpace(req.AppSecret)
	req.RedirectURI = strings.TrimSpace(req.RedirectURI)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := v.validateStruct(ctx, req); err != nil {
		return CredentialSetSummary{}, err
	}
	if req.DisplayName == "" {
		req.DisplayName = DefaultCredentialDisplayName
	}

	record := EncryptedCredentialRecord{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		DisplayName: req.DisplayName,
		Active:      true,
	}
	var err error
	if record.EncryptedAppID, err = v.cipher.Encrypt(ctx, req.TenantID, req.AppID); err != nil {
		return CredentialSetSummary{}, err
	}
	if record.EncryptedAppSecret, err = v.cipher.Encrypt(ctx, req.TenantID, req.AppSecret); err != nil {
		return CredentialSetSummary{}, err
	}
	if record.EncryptedRedirectURI, err = v.cipher.Encrypt(ctx, req.TenantID, req.RedirectURI); err != nil {
		return CredentialSetSummary{}, err
	}
	now := v.now()
	record.CreatedAt = now
	record.UpdatedAt = now

	stored, err := v.store.Activate(ctx, record)
	if err != nil {
		return CredentialSetSummary{}, err
	}
	return stored.Summary(), nil
}

func (v *CredentialVault) GetActiveCredentialSet(ctx context.Context, tenantID string) (CredentialSet, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return CredentialSet{}, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	record, err := v.store.GetActive(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return CredentialSet{}, NewCredentialsMissingError(tenantID)
		}
		return CredentialSet{}, err
	}
	return v.decryptRecord(ctx, record)
}

func (v *CredentialVault) ListCredentialSets(ctx context.Context, tenantID string) ([]CredentialSetSummary, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	records, err := v.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]CredentialSetSummary, 0, len(records))
	for _, record := range records {
		out = append(out, record.Summary())
	}
	return out, nil
}

// UpdateCredentialSet re-encrypts only the fields present in patch.
func (v *CredentialVault) UpdateCredentialSet(ctx context.Context, credentialID string, patch CredentialSetPatch) (CredentialSetSummary, error) {
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return CredentialSetSummary{}, NewFieldValidationError("credential_id", "credential id is required")
	}
	patch = trimPatch(patch)
	if patch.Empty() {
		return CredentialSetSummary{}, NewFieldValidationError("patch", "at least one field must be provided")
	}
	for field, value := range map[string]*string{
		"app_id":       patch.AppID,
		"app_secret":   patch.AppSecret,
		"redirect_uri": patch.RedirectURI,
	} {
		if value != nil && *value == "" {
			return CredentialSetSummary{}, NewFieldValidationError(field, "cannot be cleared")
		}
	}
	if err := v.validateStruct(ctx, patch); err != nil {
		return CredentialSetSummary{}, err
	}

	record, err := v.store.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return CredentialSetSummary{}, NewNotFoundError("credential set not found")
		}
		return CredentialSetSummary{}, err
	}

	encrypt := func(value *string, target *string) error {
		if value == nil {
			return nil
		}
		blob, encErr := v.cipher.Encrypt(ctx, record.TenantID, *value)
		if encErr != nil {
			return encErr
		}
		*target = blob
		return nil
	}
	if err := encrypt(patch.AppID, &record.EncryptedAppID); err != nil {
		return CredentialSetSummary{}, err
	}
	if err := encrypt(patch.AppSecret, &record.EncryptedAppSecret); err != nil {
		return CredentialSetSummary{}, err
	}
	if err := encrypt(patch.RedirectURI, &record.EncryptedRedirectURI); err != nil {
		return CredentialSetSummary{}, err
	}
	if patch.DisplayName != nil {
		record.DisplayName = *patch.DisplayName
		if record.DisplayName == "" {
			record.DisplayName = DefaultCredentialDisplayName
		}
	}
	record.UpdatedAt = v.now()

	updated, err := v.store.Update(ctx, record)
	if err != nil {
		return CredentialSetSummary{}, err
	}
	return updated.Summary(), nil
}

func (v *CredentialVault) DeleteCredentialSet(ctx context.Context, credentialID string) error {
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return NewFieldValidationError("credential_id", "credential id is required")
	}
	if err := v.store.Delete(ctx, credentialID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return NewNotFoundError("credential set not found")
		}
		return err
	}
	return nil
}

func (v *CredentialVault) decryptRecord(ctx context.Context, record EncryptedCredentialRecord) (CredentialSet, error) {
	appID, err := v.cipher.Decrypt(ctx, record.TenantID, record.EncryptedAppID)
	if err != nil {
		return CredentialSet{}, err
	}
	appSecret, err := v.cipher.Decrypt(ctx, record.TenantID, record.EncryptedAppSecret)
	if err != nil {
		return CredentialSet{}, err
	}
	redirectURI, err := v.cipher.Decrypt(ctx, record.TenantID, record.EncryptedRedirectURI)
	if err != nil {
		return CredentialSet{}, err
	}
	return CredentialSet{
		ID:          record.ID,
		TenantID:    record.TenantID,
		AppID:       appID,
		AppSecret:   appSecret,
		RedirectURI: redirectURI,
		DisplayName: record.DisplayName,
		Active:      record.Active,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}, nil
}

func (v *CredentialVault) validateStruct(ctx context.Context, value any) error {
	err := v.validate.StructCtx(ctx, value)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return NewValidationError(err.Error())
	}
	fields := make([]goerrors.FieldError, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields = append(fields, goerrors.FieldError{
			Field:   fieldErr.Field(),
			Message: describeFieldError(fieldErr),
		})
	}
	return NewValidationError("credential set validation failed", fields...)
}

func describeFieldError(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fieldErr.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fieldErr.Param())
	case "redirect_uri":
		return "must be an absolute http(s) url without a fragment"
	default:
		return fmt.Sprintf("failed %q validation", fieldErr.Tag())
	}
}

func trimPatch(patch CredentialSetPatch) CredentialSetPatch {
	trim := func(value *string) *string {
		if value == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*value)
		return &trimmed
	}
	return CredentialSetPatch{
		AppID:       trim(patch.AppID),
		AppSecret:   trim(patch.AppSecret),
		RedirectURI: trim(patch.RedirectURI),
		DisplayName: trim(patch.DisplayName),
	}
}
