package event

import "slices"

// Schema is the wire contract of a detail type.
type Schema struct {
	DetailType DetailType
	Required   []string
	Produces   []string
}

var schemas = map[DetailType]Schema{
	OnboardingRequest: {
		DetailType: OnboardingRequest,
		Required:   []string{FieldTenantID, FieldTier, FieldTenantName, FieldEmail, FieldTenantStatus},
		Produces:   []string{FieldTenantConfig, FieldTenantStatus},
	},
	ProvisionSuccess: {
		DetailType: ProvisionSuccess,
		Required:   []string{FieldTenantID, FieldTenantConfig, FieldTenantStatus},
	},
	OffboardingRequest: {
		DetailType: OffboardingRequest,
		Required:   []string{FieldTenantID, FieldTier},
		Produces:   []string{FieldTenantStatus},
	},
	DeprovisionSuccess: {
		DetailType: DeprovisionSuccess,
		Required:   []string{FieldTenantID, FieldTenantStatus},
	},
	DeployRequest: {
		DetailType: DeployRequest,
		Required:   []string{FieldTenantID},
	},
}

func Lookup(detailType DetailType) (Schema, bool) {
	s, ok := schemas[detailType]
	return s, ok
}

// DetailTypes returns the vocabulary in a stable order.
func DetailTypes() []DetailType {
	types := make([]DetailType, 0, len(schemas))
	for t := range schemas {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

func (s Schema) Carries(field string) bool {
	return slices.Contains(s.Required, field)
}

func (s Schema) CanProduce(field string) bool {
	return slices.Contains(s.Produces, field)
}
