package openwebnet

import (
	"fmt"
	"strconv"
	"strings"
)

// Who is the OpenWebNet device-category code.
type Who int

// WHO codes handled by this package.
const (
	WhoScenario   Who = 0
	WhoLighting   Who = 1
	WhoAutomation Who = 2
	WhoHeating    Who = 4
	WhoAux        Who = 9
	WhoGateway    Who = 13
	WhoSpecial    Who = 14 // command enable/disable
	WhoCEN        Who = 15
	WhoEnergy     Who = 18
	// WhoDryContact covers both dry contacts (WHAT 31/32) and CEN+ (WHAT 21-24).
	WhoDryContact Who = 25
)

// String returns the category name used in logs.
func (w Who) String() string {
	switch w {
	case WhoScenario:
		return "scenario"
	case WhoLighting:
		return "lighting"
	case WhoAutomation:
		return "automation"
	case WhoHeating:
		return "heating"
	case WhoAux:
		return "aux"
	case WhoGateway:
		return "gateway"
	case WhoSpecial:
		return "special"
	case WhoCEN:
		return "cen"
	case WhoEnergy:
		return "energy"
	case WhoDryContact:
		return "dry_contact"
	default:
		return "who_" + strconv.Itoa(int(w))
	}
}

// Key identifies one handler: "<who>-<where>", e.g. "1-0101".
type Key string

// NewKey builds the handler key for a WHO/WHERE pair.
func NewKey(who Who, where string) Key {
	return Key(fmt.Sprintf("%d-%s", int(who), where))
}

// Who returns the WHO part of the key, or -1 if the key is malformed.
func (k Key) Who() Who {
	who, _, ok := strings.Cut(string(k), "-")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(who)
	if err != nil {
		return -1
	}
	return Who(n)
}

// Where returns the WHERE part of the key.
func (k Key) Where() string {
	_, where, _ := strings.Cut(string(k), "-")
	return where
}

// ScopeKind tells how a lighting or automation WHERE is addressed.
type ScopeKind int

// Scope kinds.
const (
	ScopePointToPoint ScopeKind = iota
	ScopeGeneral
	ScopeArea
	ScopeGroup
)

// String returns the scope name.
func (s ScopeKind) String() string {
	switch s {
	case ScopeGeneral:
		return "general"
	case ScopeArea:
		return "area"
	case ScopeGroup:
		return "group"
	default:
		return "point_to_point"
	}
}

// Scope is a decoded lighting/automation WHERE.
type Scope struct {
	Kind ScopeKind

	// ID is the area number or group number for area/group scopes,
	// "0" for general, and the device address for point-to-point.
	ID string

	// Interface is the bus interface ("00"-"15") from a "#4#" suffix, empty if absent.
	Interface string
}

// interfaceSeparator marks a private-riser bus interface in a WHERE.
const interfaceSeparator = "#4#"

// ParseScope decodes a lighting/automation WHERE.
//
// Recognised forms:
//   - "0": general
//   - "00", "1"-"9", "10": area
//   - "#N" (N 1-255): group
//   - anything else: point-to-point (2 or 4 digits), optionally with "#4#II"
func ParseScope(where string) Scope {
	addr, iface, _ := strings.Cut(where, interfaceSeparator)

	switch {
	case addr == "0":
		return Scope{Kind: ScopeGeneral, ID: "0", Interface: iface}
	case strings.HasPrefix(addr, "#"):
		return Scope{Kind: ScopeGroup, ID: addr[1:], Interface: iface}
	case isArea(addr):
		return Scope{Kind: ScopeArea, ID: addr, Interface: iface}
	default:
		return Scope{Kind: ScopePointToPoint, ID: addr, Interface: iface}
	}
}

func isArea(addr string) bool {
	if addr == "00" || addr == "10" {
		return true
	}
	return len(addr) == 1 && addr[0] >= '1' && addr[0] <= '9'
}

// ValidPointToPoint reports whether where is a valid lighting/automation
// point-to-point address: "AP" with A,P in 1-9, or "AAPP" with A 00-10 and
// PP 01-15.
func ValidPointToPoint(where string) bool {
	if !isDigits(where) {
		return false
	}
	switch len(where) {
	case 2:
		return where[0] != '0' && where[1] != '0'
	case 4:
		a, _ := strconv.Atoi(where[:2]) //nolint:errcheck // digits checked above
		pl, _ := strconv.Atoi(where[2:]) //nolint:errcheck // digits checked above
		return a <= 10 && pl >= 1 && pl <= 15
	default:
		return false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
