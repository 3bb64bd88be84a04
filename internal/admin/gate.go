// Package admin implements the back-office review of account applications:
// the approval gate, the document and application actions, and the
// document image previews.
package admin

import (
	"fmt"
	"strings"

	"github.com/atinyakov/GophBank/internal/models"
)

// identityDocuments are the documents that must be verified before approval.
var identityDocuments = []models.DocumentType{models.AadhaarDocument, models.PANDocument}

// approvableStatus reports whether an application in status s may be approved.
func approvableStatus(s models.ApplicationStatus) bool {
	return s == models.StatusSubmitted || s == models.StatusPartialKYCPending
}

// CanApprove reports whether app may be approved: it must be submitted or
// partially verified, and both Aadhaar and PAN must be verified.
func CanApprove(app models.ApplicationRecord) bool {
	return approvableStatus(app.Status) && app.AadhaarVerified && app.PANVerified
}

// Unverified lists the identity documents of app that are not verified yet.
func Unverified(app models.ApplicationRecord) []models.DocumentType {
	var out []models.DocumentType
	for _, d := range identityDocuments {
		if !app.Verified(d) {
			out = append(out, d)
		}
	}
	return out
}

// ApprovalBlockedError explains why an approval was refused before any
// backend call was made.
type ApprovalBlockedError struct {
	ApplicationID int64
	Status        models.ApplicationStatus
	Unverified    []models.DocumentType
}

func (e *ApprovalBlockedError) Error() string {
	var reasons []string
	if len(e.Unverified) > 0 {
		labels := make([]string, 0, len(e.Unverified))
		for _, d := range e.Unverified {
			labels = append(labels, d.Label())
		}
		reasons = append(reasons, "unverified: "+strings.Join(labels, ", "))
	}
	if !approvableStatus(e.Status) {
		reasons = append(reasons, fmt.Sprintf("status %s cannot be approved", e.Status))
	}
	return fmt.Sprintf("application %d cannot be approved (%s)", e.ApplicationID, strings.Join(reasons, "; "))
}

// CheckApproval returns an *ApprovalBlockedError when CanApprove(app) is false.
func CheckApproval(app models.ApplicationRecord) error {
	if CanApprove(app) {
		return nil
	}
	return &ApprovalBlockedError{
		ApplicationID: app.ID,
		Status:        app.Status,
		Unverified:    Unverified(app),
	}
}
