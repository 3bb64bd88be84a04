// Package models defines the core data structures shared by the onboarding
// workflow, the admin review screens and the backend client.
package models

import "fmt"

// ApplicationStatus is the lifecycle state of an account application as
// reported by the backend.
type ApplicationStatus string

const (
	// StatusSubmitted means personal details were accepted.
	StatusSubmitted ApplicationStatus = "SUBMITTED"
	// StatusPendingKYC means neither identity document is verified yet.
	StatusPendingKYC ApplicationStatus = "PENDING_KYC"
	// StatusPartialKYCPending means exactly one of Aadhaar/PAN is verified.
	StatusPartialKYCPending ApplicationStatus = "PARTIAL_KYC_PENDING"
	// StatusApproved is terminal: the account was opened.
	StatusApproved ApplicationStatus = "APPROVED"
	// StatusRejected is terminal: the application was refused.
	StatusRejected ApplicationStatus = "REJECTED"
)

// Final reports whether no further review action can change the status.
func (s ApplicationStatus) Final() bool {
	return s == StatusApproved || s == StatusRejected
}

// DocumentType identifies one of the KYC documents attached to an application.
type DocumentType string

const (
	// ProfileDocument is the applicant's photograph.
	ProfileDocument DocumentType = "profile"
	// AadhaarDocument is the Aadhaar card scan.
	AadhaarDocument DocumentType = "aadhaar"
	// PANDocument is the PAN card scan.
	PANDocument DocumentType = "pan"
)

// DocumentTypes lists every document in display order.
var DocumentTypes = []DocumentType{ProfileDocument, AadhaarDocument, PANDocument}

// Label returns the human readable document name.
func (d DocumentType) Label() string {
	switch d {
	case ProfileDocument:
		return "Profile photo"
	case AadhaarDocument:
		return "Aadhaar"
	case PANDocument:
		return "PAN"
	}
	return string(d)
}

// PersonalDetails is the applicant form submitted to
// POST /account-applications/apply.
type PersonalDetails struct {
	FullName   string `json:"fullName" validate:"required,notblank"`
	FatherName string `json:"fatherName" validate:"required,notblank"`
	Mobile     string `json:"mobile" validate:"required,mobile"`
	DOB        string `json:"dob" validate:"required,dob"`
	Address    string `json:"address" validate:"required,notblank"`
	Aadhaar    string `json:"aadhaar" validate:"required,aadhaar"`
	PAN        string `json:"pan" validate:"required,pan"`
	State      string `json:"state" validate:"required,notblank"`
	Branch     string `json:"branch" validate:"required,notblank"`
	Email      string `json:"email,omitempty"`
}

// DocumentPaths holds backend storage paths of the uploaded KYC images.
type DocumentPaths struct {
	Profile string `json:"profile,omitempty"`
	Aadhaar string `json:"aadhaar,omitempty"`
	PAN     string `json:"pan,omitempty"`
}

// Path returns the storage path for the given document, or "" if none.
func (p DocumentPaths) Path(d DocumentType) string {
	switch d {
	case ProfileDocument:
		return p.Profile
	case AadhaarDocument:
		return p.Aadhaar
	case PANDocument:
		return p.PAN
	}
	return ""
}

// ApplicationRecord is the backend-owned view of an account application.
// It is only ever read here.
type ApplicationRecord struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"userId,omitempty"`
	Status          ApplicationStatus `json:"status"`
	AadhaarVerified bool              `json:"aadhaarVerified"`
	PANVerified     bool              `json:"panVerified"`
	Documents       DocumentPaths     `json:"documents"`
	RejectionReason string            `json:"rejectionReason,omitempty"`

	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
	Branch   string `json:"branch,omitempty"`
}

// Verified reports whether the given identity document is verified.
// The profile photo carries no verification flag and is always false.
func (a ApplicationRecord) Verified(d DocumentType) bool {
	switch d {
	case AadhaarDocument:
		return a.AadhaarVerified
	case PANDocument:
		return a.PANVerified
	}
	return false
}

// KYCFile is one uploaded document image.
type KYCFile struct {
	Filename string
	Data     []byte
}

// Present reports whether the file carries content.
func (f *KYCFile) Present() bool {
	return f != nil && len(f.Data) > 0
}

// KYCDocuments bundles the three files uploaded in the KYC stage.
type KYCDocuments struct {
	Profile *KYCFile
	Aadhaar *KYCFile
	PAN     *KYCFile
}

// File returns the file for the given document type.
func (k KYCDocuments) File(d DocumentType) *KYCFile {
	switch d {
	case ProfileDocument:
		return k.Profile
	case AadhaarDocument:
		return k.Aadhaar
	case PANDocument:
		return k.PAN
	}
	return nil
}

// Missing lists the document types with no file attached.
func (k KYCDocuments) Missing() []DocumentType {
	var missing []DocumentType
	for _, d := range DocumentTypes {
		if !k.File(d).Present() {
			missing = append(missing, d)
		}
	}
	return missing
}

// FormField returns the multipart field name the backend expects for d.
func FormField(d DocumentType) string {
	return fmt.Sprintf("%sImage", d)
}

// TimerState is the persisted OTP resend countdown, stored under the
// "otpTimerState" key.
type TimerState struct {
	// ExpiryTime is the absolute expiry in Unix milliseconds.
	ExpiryTime int64 `json:"expiryTime"`
}
