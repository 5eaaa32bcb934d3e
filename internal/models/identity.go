package models

import "strings"

// IdentityKind tags how an applicant is recognised
type IdentityKind string

const (
	IdentityUser   IdentityKind = "user"
	IdentityWechat IdentityKind = "wechat"
	IdentityEmail  IdentityKind = "email"
)

// ApplicantIdentity is one key under which an applicant may already have applied
type ApplicantIdentity struct {
	Kind  IdentityKind
	Value string
}

// ByUser identifies a registered applicant
func ByUser(id string) ApplicantIdentity {
	return ApplicantIdentity{Kind: IdentityUser, Value: id}
}

// ByWechat identifies an applicant by WeChat ID, case-insensitively
func ByWechat(wechat string) ApplicantIdentity {
	return ApplicantIdentity{Kind: IdentityWechat, Value: NormalizeContact(wechat)}
}

// ByEmail identifies an applicant by email, case-insensitively
func ByEmail(email string) ApplicantIdentity {
	return ApplicantIdentity{Kind: IdentityEmail, Value: NormalizeContact(email)}
}

// ResolveIdentities lists the applicant's keys, strongest first.
// Any match on any key for the same card counts as a duplicate.
func ResolveIdentities(userID *string, wechat, email string) []ApplicantIdentity {
	var ids []ApplicantIdentity
	if userID != nil && *userID != "" {
		ids = append(ids, ByUser(*userID))
	}
	if NormalizeContact(wechat) != "" {
		ids = append(ids, ByWechat(wechat))
	}
	if NormalizeContact(email) != "" {
		ids = append(ids, ByEmail(email))
	}
	return ids
}

// NormalizeContact is the comparison form of a wechat id or email
func NormalizeContact(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
