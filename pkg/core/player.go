// pkg/core/player.go
package core

import "time"

// IdentifierScheme names the identity scheme of a telemetry identifier.
type IdentifierScheme string

const (
	SchemeSteam   IdentifierScheme = "steam"   // platform-account, hex token
	SchemeLicense IdentifierScheme = "license" // licensing key
	SchemeDiscord IdentifierScheme = "discord" // third-party chat
)

// PermissionTier is the account permission level reported by the CAD.
type PermissionTier string

const (
	TierUser       PermissionTier = "USER"
	TierSupervisor PermissionTier = "SUPERVISOR"
	TierAdmin      PermissionTier = "ADMIN"
	TierOwner      PermissionTier = "OWNER"
)

// UnitType distinguishes the kinds of on-duty unit records.
type UnitType string

const (
	UnitOfficer  UnitType = "OFFICER"
	UnitDeputy   UnitType = "EMS_FD_DEPUTY"
	UnitCombined UnitType = "COMBINED_UNIT"
)

// Unit is an on-duty operator role record.
type Unit struct {
	ID       string   `json:"id"`
	Type     UnitType `json:"type"`
	CallSign string   `json:"callsign"`
	Status   string   `json:"status"`
	// DepartmentID is empty for combined units
	DepartmentID string `json:"departmentId,omitempty"`
}

// ResolvedIdentity is the persistent-account view matched to an
// ephemeral telemetry identifier.
type ResolvedIdentity struct {
	AccountID   string         `json:"accountId"`
	DisplayName string         `json:"displayName"`
	Tier        PermissionTier `json:"permissionTier"`
	// ActiveUnit is nil when the operator is off duty
	ActiveUnit *Unit `json:"activeUnit,omitempty"`
}

// MapPlayer is one registry entry: the latest telemetry for an ephemeral
// identifier, plus the resolved identity once resolution completes.
type MapPlayer struct {
	Identifier  string            `json:"identifier"`
	Kind        PlayerKind        `json:"kind"`
	Position    Position3D        `json:"position"`
	Heading     float64           `json:"heading"`
	PlayerName  string            `json:"playerName,omitempty"`
	Vehicle     string            `json:"vehicle,omitempty"`
	Weapon      string            `json:"weapon,omitempty"`
	Plate       string            `json:"plate,omitempty"`
	FirstSeen   time.Time         `json:"firstSeen"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Identity    *ResolvedIdentity `json:"identity,omitempty"`
}
