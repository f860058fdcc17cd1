package common

const (
	ComponentScheduler            = "scheduler"
	ComponentSubscriptionRegistry = "subscription-registry"
	ComponentEffectCache          = "effect-cache"
	ComponentEntityStore          = "entity-store"
	ComponentLogSource            = "log-source"
	ComponentCheckpoint           = "checkpoint"
	ComponentAPI                  = "api"
	ComponentOrchestrator         = "orchestrator"
	ComponentHandler              = "handler"
)

var AllComponents = map[string]struct{}{
	ComponentScheduler:            {},
	ComponentSubscriptionRegistry: {},
	ComponentEffectCache:          {},
	ComponentEntityStore:          {},
	ComponentLogSource:            {},
	ComponentCheckpoint:           {},
	ComponentAPI:                  {},
	ComponentOrchestrator:         {},
	ComponentHandler:              {},
}
