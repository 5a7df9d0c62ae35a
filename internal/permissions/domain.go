package permissions

// Module keys identify the functional areas of the surrounding
// application. They are domain data carried over from the production
// catalog; permission rows referencing unknown keys are rejected.
const (
	ModuleDashboard           = "dashboard"
	ModuleInsumos             = "insumos"
	ModuleEquipEletricos      = "equipamentos_eletricos"
	ModuleEquipManuais        = "equipamentos_manuais"
	ModuleMovimentacoes       = "movimentacoes"
	ModuleObrasDepartamentos  = "obras_departamentos"
	ModuleResponsaveis        = "responsaveis"
	ModuleRelatorios          = "relatorios"
	ModuleLogsAuditoria       = "logs_auditoria"
	ModuleUsuarios            = "usuarios"
	ModuleConfiguracoes       = "configuracoes"
	ModuleQRCodigos           = "qr_codigos"
	ModuleReservas            = "reservas"
	ModuleManutencao          = "manutencao_preventiva"
	ModuleDashboardExecutivo  = "dashboard_executivo"
	ModuleLocalizacao         = "localizacao"
	ModuleGestaoFinanceira    = "gestao_financeira"
	ModuleAnalisePreditiva    = "analise_preditiva"
	ModuleAuditoriaAvancada   = "auditoria_avancada"
	ModuleBackupAutomatico    = "backup_automatico"
)

// Catalog lists every known module key.
func Catalog() []string {
	return []string{
		ModuleDashboard,
		ModuleInsumos,
		ModuleEquipEletricos,
		ModuleEquipManuais,
		ModuleMovimentacoes,
		ModuleObrasDepartamentos,
		ModuleResponsaveis,
		ModuleRelatorios,
		ModuleLogsAuditoria,
		ModuleUsuarios,
		ModuleConfiguracoes,
		ModuleQRCodigos,
		ModuleReservas,
		ModuleManutencao,
		ModuleDashboardExecutivo,
		ModuleLocalizacao,
		ModuleGestaoFinanceira,
		ModuleAnalisePreditiva,
		ModuleAuditoriaAvancada,
		ModuleBackupAutomatico,
	}
}

// KnownModule reports whether key is in the catalog.
func KnownModule(key string) bool {
	for _, m := range Catalog() {
		if m == key {
			return true
		}
	}
	return false
}

// ModulePermission is a per-user override row. Absence of a row means
// deny; the admin role and the dashboard module are implicit grants.
type ModulePermission struct {
	UserID    int64
	ModuleKey string
	Granted   bool
}
