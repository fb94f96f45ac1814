package principals

import "time"

// SkillLevel is an ordered qualification scale used for capability-adjacent
// checks outside pure permission membership (e.g. who may run a setup
// unattended). Higher values include the capabilities of lower ones.
type SkillLevel int

const (
	SkillHelper SkillLevel = iota
	SkillOperator
	SkillTechnician
	SkillSpecialist
)

var skillNames = map[SkillLevel]string{
	SkillHelper:     "helper",
	SkillOperator:   "operator",
	SkillTechnician: "technician",
	SkillSpecialist: "specialist",
}

// String returns the lowercase label stored in the database.
func (s SkillLevel) String() string {
	if name, ok := skillNames[s]; ok {
		return name
	}
	return "helper"
}

// AtLeast reports whether the level meets or exceeds the required one.
func (s SkillLevel) AtLeast(required SkillLevel) bool {
	return s >= required
}

// ParseSkillLevel maps a label to its ordinal. Unknown labels fall back to
// the lowest level rather than failing, matching deny-by-default elsewhere.
func ParseSkillLevel(label string) SkillLevel {
	for level, name := range skillNames {
		if name == label {
			return level
		}
	}
	return SkillHelper
}

// Principal represents an identity capable of holding roles.
type Principal struct {
	ID             int64
	Handle         string
	Name           string
	CredentialHash string
	IsActive       bool
	SkillLevel     SkillLevel
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
