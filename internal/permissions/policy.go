package permissions

import "github.com/almoxweb/almoxweb/internal/users"

// RolePolicy is the data-driven default grant set per role. It is
// consulted when provisioning a user (to prefill override rows) and by
// admin screens, never inside Check: access decisions read only the
// stored rows plus the admin and dashboard exceptions, keeping
// default-deny intact for accounts that were provisioned without rows.
type RolePolicy map[users.Role][]string

// DefaultRolePolicy mirrors the production default grants.
func DefaultRolePolicy() RolePolicy {
	return RolePolicy{
		users.RoleAdmin: Catalog(),
		users.RoleManager: {
			ModuleDashboard,
			ModuleInsumos,
			ModuleEquipEletricos,
			ModuleEquipManuais,
			ModuleMovimentacoes,
			ModuleObrasDepartamentos,
			ModuleResponsaveis,
			ModuleRelatorios,
			ModuleAuditoriaAvancada,
		},
		users.RoleUser: {
			ModuleDashboard,
			ModuleInsumos,
			ModuleEquipEletricos,
			ModuleEquipManuais,
		},
	}
}

// DefaultsFor returns the default module map for a role: every catalog
// key present, granted when the role's default set contains it.
func (p RolePolicy) DefaultsFor(role users.Role) map[string]bool {
	granted := make(map[string]struct{}, len(p[role]))
	for _, key := range p[role] {
		granted[key] = struct{}{}
	}
	defaults := make(map[string]bool, len(Catalog()))
	for _, key := range Catalog() {
		_, ok := granted[key]
		defaults[key] = ok
	}
	return defaults
}
