package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldProjectID  = "project_id"
	FieldScenarioID = "scenario_id"
	FieldCategoryID = "category_id"
	FieldMonth      = "month"
	FieldAmount     = "amount"
	FieldBackend    = "backend"
	FieldUserID     = "user_id"
	FieldRole       = "role"
)

// Components defines standard component names.
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentPlanner = "planner"
	ComponentStore   = "store"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentExport  = "export"
)

// Operations defines standard operation names.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpRecompute = "recompute"
	OpSave      = "save"
	OpLoad      = "load"
	OpExport    = "export"
	OpImport    = "import"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
