package turn

import (
	"github.com/finlens/copilot/rag"
)

const (
	ragModeRequired = "required"
	ragModeOptional = "optional"
	ragModeNone     = "none"
)

// ragModeExtractors is the ordered list of payload locations that may carry
// the retrieval mode. The first non-empty match wins.
var ragModeExtractors = []func(*rag.TurnResponse) string{
	func(payload *rag.TurnResponse) string {
		if payload.Meta != nil && payload.Meta.Retrieval != nil {
			return payload.Meta.Retrieval.Mode
		}
		return ""
	},
	func(payload *rag.TurnResponse) string {
		if payload.Meta != nil {
			return payload.Meta.RAGMode
		}
		return ""
	},
	func(payload *rag.TurnResponse) string {
		return payload.RAGMode
	},
}

// detectRAGMode resolves the backend's declared retrieval strategy.
func detectRAGMode(payload *rag.TurnResponse) string {
	for _, extract := range ragModeExtractors {
		if mode := extract(payload); mode != "" {
			return mode
		}
	}
	return ""
}
