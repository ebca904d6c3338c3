package reflector

import (
	"github.com/dbehnke/reflector-nexus/pkg/acl"
)

// ACL is the access list an engine consults and mutates
type ACL interface {
	Allowed(callsign string) bool
	AllowedID(rid uint32) bool
	AddOrUpdate(entry acl.Entry)
	SetAllowed(callsign string, allowed bool) error
	Entries() []acl.Entry
	Persist() error
}

// Admission decides whether a first contact may link
type Admission struct {
	enforce bool
	acl     ACL
	filter  func(Registration) (bool, string)
}

// NewAdmission combines the access list, consulted only when enforce is
// set, with a protocol filter. A nil list denies everyone under enforcement.
func NewAdmission(enforce bool, list ACL, filter func(Registration) (bool, string)) *Admission {
	return &Admission{enforce: enforce, acl: list, filter: filter}
}

// Admit reports whether reg may link and, when it may not, why
func (a *Admission) Admit(reg Registration) (bool, string) {
	aclOK := true
	if a.enforce {
		aclOK = a.acl != nil && a.acl.Allowed(reg.Callsign)
	}

	filterOK, reason := true, ""
	if a.filter != nil {
		filterOK, reason = a.filter(reg)
	}

	switch {
	case !filterOK && !aclOK:
		return false, reason + "; acl rejection"
	case !filterOK:
		return false, reason
	case !aclOK:
		return false, "acl rejection"
	}
	return true, ""
}

// AdmitTalker reports whether the numeric source id of a call may be heard.
// Zero means the protocol carried no id and is always admitted.
func (a *Admission) AdmitTalker(rid uint32) bool {
	if !a.enforce || rid == 0 {
		return true
	}
	return a.acl != nil && a.acl.AllowedID(rid)
}
