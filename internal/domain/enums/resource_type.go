package enums

type ResourceType string

const (
	ResourceScan       ResourceType = "scan"
	ResourceAIQuestion ResourceType = "ai_question"
	ResourceExport     ResourceType = "export"
)

func AllResourceTypes() []ResourceType {
	return []ResourceType{ResourceScan, ResourceAIQuestion, ResourceExport}
}

func (r ResourceType) Valid() bool {
	switch r {
	case ResourceScan, ResourceAIQuestion, ResourceExport:
		return true
	default:
		return false
	}
}

type PeriodKind string

const (
	PeriodDaily   PeriodKind = "daily"
	PeriodMonthly PeriodKind = "monthly"
)
