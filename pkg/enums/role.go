package enums

import "fmt"

// Role is the marketplace role carried in access tokens.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleBuyer  Role = "buyer"
	RoleAdmin  Role = "admin"
)

var validRoles = []Role{RoleFarmer, RoleBuyer, RoleAdmin}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// Capability names a single permitted action.
type Capability string

const (
	CapContractsCreate  Capability = "contracts:create"
	CapContractsRead    Capability = "contracts:read"
	CapContractsSign    Capability = "contracts:sign"
	CapProposalsCreate  Capability = "proposals:create"
	CapProposalsAccept  Capability = "proposals:accept"
	CapShipmentsCreate  Capability = "shipments:create"
	CapShipmentsConfirm Capability = "shipments:confirm"
	CapDisputesRaise    Capability = "disputes:raise"
	CapDisputesResolve  Capability = "disputes:resolve"
	CapEscrowManage     Capability = "escrow:manage"
	CapPaymentsMock     Capability = "payments:mock"
)

var roleCapabilities = map[Role][]Capability{
	RoleBuyer: {
		CapContractsCreate,
		CapContractsRead,
		CapContractsSign,
		CapProposalsCreate,
		CapProposalsAccept,
		CapShipmentsConfirm,
		CapDisputesRaise,
	},
	RoleFarmer: {
		CapContractsRead,
		CapContractsSign,
		CapProposalsCreate,
		CapProposalsAccept,
		CapShipmentsCreate,
		CapDisputesRaise,
	},
	RoleAdmin: {
		CapContractsRead,
		CapContractsSign,
		CapProposalsCreate,
		CapProposalsAccept,
		CapShipmentsCreate,
		CapShipmentsConfirm,
		CapDisputesRaise,
		CapDisputesResolve,
		CapEscrowManage,
		CapPaymentsMock,
	},
}

// Can reports whether the role grants the capability.
func (r Role) Can(capability Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == capability {
			return true
		}
	}
	return false
}

// Capabilities lists everything the role grants.
func (r Role) Capabilities() []Capability {
	caps := roleCapabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}
