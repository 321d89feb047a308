package blocks

import (
	"go.uber.org/zap"

	"github.com/bengine/bengine"
)

// Defaults returns the built-in block definitions.
func Defaults() []*bengine.Extensible {
	return []*bengine.Extensible{
		Text(),
		Image(),
		Audio(),
		Video(),
		QText(),
		QStep(),
		QStore(),
		QAns(),
	}
}

// DefaultRegistry builds a registry holding the built-in catalogue.
func DefaultRegistry(logger *zap.SugaredLogger) (*bengine.Registry, error) {
	return bengine.NewRegistry(Defaults(), logger)
}
