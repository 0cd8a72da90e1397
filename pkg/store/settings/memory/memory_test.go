package memory

import (
	"testing"

	"github.com/marmos91/gpibgate/pkg/store/settings"
	storetesting "github.com/marmos91/gpibgate/pkg/store/settings/testing"
)

func TestMemoryStore(t *testing.T) {
	storetesting.RunStoreTests(t, func(t *testing.T) settings.Store {
		return New()
	})
}
