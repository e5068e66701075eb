package memory

import (
	"testing"

	"github.com/jkaninda/oneline/internal/persistence"
	"github.com/jkaninda/oneline/internal/persistence/persistencetest"
)

func TestDriver(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Driver {
		return New()
	})
}
