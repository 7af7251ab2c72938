package model

import (
	"fmt"
	"strings"
)

// Privilege is the level of control an attacker holds over a service.
// Levels are totally ordered; escalation logic compares them directly.
type Privilege int

const (
	// PrivilegeNone means no access at all
	PrivilegeNone Privilege = iota
	// PrivilegeLowUser is an unprivileged user inside a virtualised OS (container user)
	PrivilegeLowUser
	// PrivilegeLowAdmin is root inside a virtualised OS (container root)
	PrivilegeLowAdmin
	// PrivilegeUser is an unprivileged user on the host
	PrivilegeUser
	// PrivilegeAdmin is full control of the host
	PrivilegeAdmin
)

// MaxPrivilege is the highest privilege level.
const MaxPrivilege = PrivilegeAdmin

// String returns the label used in graphs and reports
func (p Privilege) String() string {
	switch p {
	case PrivilegeNone:
		return "NONE"
	case PrivilegeLowUser:
		return "VOS USER"
	case PrivilegeLowAdmin:
		return "VOS ADMIN"
	case PrivilegeUser:
		return "USER"
	case PrivilegeAdmin:
		return "ADMIN"
	default:
		return fmt.Sprintf("PRIVILEGE(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined levels.
func (p Privilege) Valid() bool {
	return p >= PrivilegeNone && p <= PrivilegeAdmin
}

// ParsePrivilege converts a rule or report label to a Privilege.
func ParsePrivilege(s string) (Privilege, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return PrivilegeNone, nil
	case "VOS USER", "LOW_USER", "LOW USER":
		return PrivilegeLowUser, nil
	case "VOS ADMIN", "LOW_ADMIN", "LOW ADMIN":
		return PrivilegeLowAdmin, nil
	case "USER":
		return PrivilegeUser, nil
	case "ADMIN":
		return PrivilegeAdmin, nil
	default:
		return PrivilegeNone, fmt.Errorf("unknown privilege level %q", s)
	}
}

// UnmarshalText lets privileges appear as labels in YAML rule files.
func (p *Privilege) UnmarshalText(text []byte) error {
	parsed, err := ParsePrivilege(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText emits the label form.
func (p Privilege) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Privileges returns every level from NONE up to and including max.
func Privileges(max Privilege) []Privilege {
	if max > MaxPrivilege {
		max = MaxPrivilege
	}
	levels := make([]Privilege, 0, int(max)+1)
	for p := PrivilegeNone; p <= max; p++ {
		levels = append(levels, p)
	}
	return levels
}
