package onboarding

import "fmt"

// Stage is a step of the account-opening flow.
type Stage int

const (
	StageEmailEntry Stage = iota
	StageOtpPending
	StageDetailsEntry
	StageKycUpload
	StageSubmitted
)

var stageNames = [...]string{
	StageEmailEntry:   "EmailEntry",
	StageOtpPending:   "OtpPending",
	StageDetailsEntry: "DetailsEntry",
	StageKycUpload:    "KycUpload",
	StageSubmitted:    "Submitted",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageSubmitted
}

func (s Stage) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stageNames) {
		return nil, fmt.Errorf("unknown stage %d", int(s))
	}
	return []byte(stageNames[s]), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", b)
}
