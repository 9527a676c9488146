package constants

// Log attribute keys shared by every component.
const (
	LogKeyTenantID   = "tenantId"
	LogKeyDetailType = "detailType"
	LogKeyService    = "service"
	LogKeyNamespace  = "namespace"
	LogKeyJob        = "job"
	LogKeyRunID      = "runId"
	LogKeyTaskID     = "taskId"
)
