package model

// Role identifies an expert persona the pipeline can invoke.
type Role string

const (
	RoleManager Role = "manager"

	// Business roles.
	RoleResearcher Role = "researcher"
	RoleStrategist Role = "strategist"
	RoleSector     Role = "sector"
	RoleFinancial  Role = "financial"

	// Science roles.
	RoleAerospace  Role = "aerospace"
	RoleNuclear    Role = "nuclear"
	RoleBiology    Role = "biology"
	RoleAIExpert   Role = "ai_expert"
	RoleMechanical Role = "mechanical"
	RolePhysics    Role = "physics"

	// Deal roles.
	RoleLegal         Role = "legal"
	RoleGeopolitical  Role = "geopolitical"
	RoleTeam          Role = "team"
	RoleSupplyChain   Role = "supply_chain"
	RoleGrowth        Role = "growth"
	RoleCybersecurity Role = "cybersecurity"
	RoleFundFit       Role = "fund_fit"

	RoleSummary Role = "summary"
	RoleQA      Role = "qa"
)

// RoleGroup classifies a role by the pipeline phase that runs it.
type RoleGroup string

const (
	GroupManager  RoleGroup = "manager"
	GroupBusiness RoleGroup = "business"
	GroupScience  RoleGroup = "science"
	GroupDeal     RoleGroup = "deal"
	GroupSummary  RoleGroup = "summary"
	GroupQA       RoleGroup = "qa"
)

// BusinessRoles always run, regardless of the triage decision.
var BusinessRoles = []Role{RoleResearcher, RoleStrategist, RoleSector, RoleFinancial}

// ScienceRoles run only when selected by triage.
var ScienceRoles = []Role{RoleAerospace, RoleNuclear, RoleBiology, RoleAIExpert, RoleMechanical, RolePhysics}

// DealRoles run only when selected by triage.
var DealRoles = []Role{RoleLegal, RoleGeopolitical, RoleTeam, RoleSupplyChain, RoleGrowth, RoleCybersecurity, RoleFundFit}

// DeepenRoles are re-run by a deepen pass, followed by the summary.
var DeepenRoles = BusinessRoles

// roleGroups is the single source of truth for the closed role set.
var roleGroups = map[Role]RoleGroup{
	RoleManager:       GroupManager,
	RoleResearcher:    GroupBusiness,
	RoleStrategist:    GroupBusiness,
	RoleSector:        GroupBusiness,
	RoleFinancial:     GroupBusiness,
	RoleAerospace:     GroupScience,
	RoleNuclear:       GroupScience,
	RoleBiology:       GroupScience,
	RoleAIExpert:      GroupScience,
	RoleMechanical:    GroupScience,
	RolePhysics:       GroupScience,
	RoleLegal:         GroupDeal,
	RoleGeopolitical:  GroupDeal,
	RoleTeam:          GroupDeal,
	RoleSupplyChain:   GroupDeal,
	RoleGrowth:        GroupDeal,
	RoleCybersecurity: GroupDeal,
	RoleFundFit:       GroupDeal,
	RoleSummary:       GroupSummary,
	RoleQA:            GroupQA,
}

// Group returns the role's group and whether the role is known.
func (r Role) Group() (RoleGroup, bool) {
	g, ok := roleGroups[r]
	return g, ok
}

// Valid reports whether r belongs to the known role set.
func (r Role) Valid() bool {
	_, ok := roleGroups[r]
	return ok
}

// Triaged reports whether the role is gated by the manager's decision.
func (r Role) Triaged() bool {
	g := roleGroups[r]
	return g == GroupScience || g == GroupDeal
}

// TriagedRoles returns the science and deal roles, in display order.
func TriagedRoles() []Role {
	out := make([]Role, 0, len(ScienceRoles)+len(DealRoles))
	out = append(out, ScienceRoles...)
	out = append(out, DealRoles...)
	return out
}

// PipelineRoles returns every role a job carries, in display order. The
// manager and quality reviewer are optional.
func PipelineRoles(withManager, withQA bool) []Role {
	var out []Role
	if withManager {
		out = append(out, RoleManager)
	}
	out = append(out, BusinessRoles...)
	out = append(out, ScienceRoles...)
	out = append(out, DealRoles...)
	out = append(out, RoleSummary)
	if withQA {
		out = append(out, RoleQA)
	}
	return out
}

// AllRoles returns the full known role set.
func AllRoles() []Role {
	return PipelineRoles(true, true)
}
