package constants

const (
	APIName = "TENANT_LIFECYCLE"
	AppName = "tenant-lifecycle"

	DefaultConfigPath1 = "/etc/tenant-lifecycle"
	DefaultConfigPath2 = "$HOME/.tenant-lifecycle"
)

// BuildVersion is overridden at link time.
var BuildVersion = `{"version":"dev"}`
