package domain

import "fmt"

// EntityType determines the JSON schema and the storage collection of a
// metadata document.
type EntityType string

const (
	TypeSP   EntityType = "saml20_sp"
	TypeIDP  EntityType = "saml20_idp"
	TypeRP   EntityType = "oidc10_rp"
	TypeRS   EntityType = "oauth20_rs"
	TypeSTT  EntityType = "single_tenant_template"
	TypePROV EntityType = "provisioning"
)

// EntityTypes lists every known type in declaration order.
var EntityTypes = []EntityType{TypeSP, TypeIDP, TypeRP, TypeRS, TypeSTT, TypePROV}

// RevisionSuffix is appended to a type's collection name to form the
// collection holding its archived revisions.
const RevisionSuffix = "_revision"

func (t EntityType) String() string {
	return string(t)
}

// Collection returns the collection holding current documents of this type.
func (t EntityType) Collection() string {
	return string(t)
}

// RevisionCollection returns the collection holding archived revisions.
func (t EntityType) RevisionCollection() string {
	return string(t) + RevisionSuffix
}

// EntityTypeFromString resolves a stored type value back to an EntityType.
func EntityTypeFromString(s string) (EntityType, error) {
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}
