package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/GophBank/internal/models"
)

// ActionKind enumerates the review actions an admin can take.
type ActionKind int

const (
	// ActionApprove approves the whole application.
	ActionApprove ActionKind = iota + 1
	// ActionReject rejects the whole application with a reason.
	ActionReject
	// ActionApproveDocument marks Aadhaar or PAN as verified.
	ActionApproveDocument
	// ActionRejectDocument rejects the application because of one document.
	ActionRejectDocument
)

var actionNames = map[ActionKind]string{
	ActionApprove:         "approve",
	ActionReject:          "reject",
	ActionApproveDocument: "approve-document",
	ActionRejectDocument:  "reject-document",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

func (k ActionKind) MarshalText() ([]byte, error) {
	name, ok := actionNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown action kind %d", int(k))
	}
	return []byte(name), nil
}

func (k *ActionKind) UnmarshalText(b []byte) error {
	for kind, name := range actionNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown action kind %q", b)
}

// Action is one review decision. Document is used by the document actions;
// Reason by the reject actions.
type Action struct {
	Kind     ActionKind          `json:"kind"`
	Document models.DocumentType `json:"document,omitempty"`
	Reason   string              `json:"reason,omitempty"`
}

// ErrInvalidAction is returned for actions missing required fields.
var ErrInvalidAction = errors.New("invalid action")

// Validate checks that the fields required by the action kind are set.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionApprove:
		return nil
	case ActionReject:
		if strings.TrimSpace(a.Reason) == "" {
			return fmt.Errorf("%w: reject requires a reason", ErrInvalidAction)
		}
		return nil
	case ActionApproveDocument:
		return checkIdentityDocument(a.Document)
	case ActionRejectDocument:
		if err := checkIdentityDocument(a.Document); err != nil {
			return err
		}
		if strings.TrimSpace(a.Reason) == "" {
			return fmt.Errorf("%w: reject-document requires a reason", ErrInvalidAction)
		}
		return nil
	}
	return fmt.Errorf("%w: kind %s", ErrInvalidAction, a.Kind)
}

func checkIdentityDocument(d models.DocumentType) error {
	if d != models.AadhaarDocument && d != models.PANDocument {
		return fmt.Errorf("%w: document must be aadhaar or pan, got %q", ErrInvalidAction, d)
	}
	return nil
}

// ParseAction decodes an Action from JSON and validates it.
func ParseAction(b []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(b, &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return a, a.Validate()
}
