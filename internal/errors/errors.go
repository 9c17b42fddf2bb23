// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyMaterialized is returned when a campaign already produced its ledger rows.
	ErrAlreadyMaterialized = errors.New("campaign already materialized")
	ErrNoTargetContacts    = errors.New("no target contacts")
	ErrDuplicateLedgerRow  = errors.New("duplicate campaign email for contact")
	// ErrStaleStatus means a conditional status transition matched no row.
	ErrStaleStatus = errors.New("campaign status changed concurrently")
)

// ErrCampaignNotFound is returned when a campaign does not exist in the organization
type ErrCampaignNotFound struct {
	OrganizationID int64
	CampaignID     int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found in organization %d", e.CampaignID, e.OrganizationID)
}

// Helper constructor
func NewCampaignNotFound(orgID, id int64) error {
	return &ErrCampaignNotFound{OrganizationID: orgID, CampaignID: id}
}

type ErrAudienceNotFound struct {
	OrganizationID int64
	AudienceID     int64
}

func (e *ErrAudienceNotFound) Error() string {
	return fmt.Sprintf("audience with ID %d not found in organization %d", e.AudienceID, e.OrganizationID)
}

func NewAudienceNotFound(orgID, id int64) error {
	return &ErrAudienceNotFound{OrganizationID: orgID, AudienceID: id}
}

type ErrTemplateNotFound struct {
	OrganizationID int64
	TemplateID     int64
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("email template with ID %d not found in organization %d", e.TemplateID, e.OrganizationID)
}

func NewTemplateNotFound(orgID, id int64) error {
	return &ErrTemplateNotFound{OrganizationID: orgID, TemplateID: id}
}

// ValidationError lists the human readable reasons a campaign cannot be executed.
// Nothing has been mutated when it is returned.
type ValidationError struct {
	CampaignID int64
	Reasons    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("campaign %d cannot be executed: %s", e.CampaignID, strings.Join(e.Reasons, "; "))
}

func NewValidationError(campaignID int64, reasons ...string) error {
	return &ValidationError{CampaignID: campaignID, Reasons: reasons}
}

// MaterializationError is returned when the materialization transaction was rolled back.
type MaterializationError struct {
	CampaignID int64
	Reason     string
	Err        error
}

func (e *MaterializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("materializing campaign %d: %s", e.CampaignID, e.Reason)
	}
	return fmt.Sprintf("materializing campaign %d: %s: %v", e.CampaignID, e.Reason, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

func NewMaterializationError(campaignID int64, reason string, err error) error {
	return &MaterializationError{CampaignID: campaignID, Reason: reason, Err: err}
}

// Reasons extracts the human readable failure reasons from err, if any.
func Reasons(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reasons
	}
	var me *MaterializationError
	if errors.As(err, &me) {
		return []string{me.Reason}
	}
	if err != nil {
		return []string{err.Error()}
	}
	return nil
}

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var a *ErrAudienceNotFound
	var t *ErrTemplateNotFound
	return errors.As(err, &c) || errors.As(err, &a) || errors.As(err, &t)
}
