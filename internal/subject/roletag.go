package subject

import (
	"strings"

	"skillforge.org/internal/directory"
)

// RoleTag identifies a role family member in canonical form.
type RoleTag string

const (
	TagFacilitator   RoleTag = "facilitator"
	TagLearner       RoleTag = "learner"
	TagSponsor       RoleTag = "sponsor"
	TagAdministrator RoleTag = "administrator"
	TagMember        RoleTag = "member"
)

// Family splits role tags into privileged officials and plain members.
type Family string

const (
	FamilyOfficial Family = "official"
	FamilyMember   Family = "member"
)

// aliases maps accepted spellings to canonical tags. Consulted once at the
// boundary of every public operation; comparisons past that point are exact.
var aliases = map[string]RoleTag{
	"student": TagLearner,
	"admin":   TagAdministrator,
}

var tagsByKind = map[Kind][]RoleTag{
	KindProject:      {TagFacilitator, TagLearner, TagSponsor},
	KindOrganization: {TagAdministrator, TagMember},
}

// Normalize lowercases, trims and de-aliases a raw tag. The second return is
// false when the value names no known role tag.
func Normalize(raw string) (RoleTag, bool) {
	cleaned := strings.TrimSpace(strings.ToLower(raw))
	if cleaned == "" {
		return "", false
	}
	if canonical, ok := aliases[cleaned]; ok {
		return canonical, true
	}
	tag := RoleTag(cleaned)
	switch tag {
	case TagFacilitator, TagLearner, TagSponsor, TagAdministrator, TagMember:
		return tag, true
	}
	return "", false
}

// Family reports which family the tag belongs to. Sponsor is member-family;
// an official may hold it in addition to their official tag.
func (t RoleTag) Family() Family {
	switch t {
	case TagFacilitator, TagAdministrator:
		return FamilyOfficial
	default:
		return FamilyMember
	}
}

// ValidFor reports whether the tag is drawn from the subject kind's
// enumeration.
func (t RoleTag) ValidFor(kind Kind) bool {
	for _, candidate := range tagsByKind[kind] {
		if candidate == t {
			return true
		}
	}
	return false
}

// OfficialTag returns the official-family tag for a subject kind.
func OfficialTag(kind Kind) RoleTag {
	if kind == KindOrganization {
		return TagAdministrator
	}
	return TagFacilitator
}

// RequiredUserType returns the user-type tag a prospective holder of t must
// carry, for the tags that require one.
func (t RoleTag) RequiredUserType() (string, bool) {
	switch t {
	case TagFacilitator:
		return directory.TypeFacilitator, true
	case TagLearner:
		return directory.TypeStudent, true
	}
	return "", false
}
