package memory

import (
	"testing"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.RoomStore { return New() })
}
