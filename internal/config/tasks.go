package config

const (
	TypeDeployAll = "deploy-all"
)

var DefinedTasks = map[string]struct{}{
	TypeDeployAll: {},
}
