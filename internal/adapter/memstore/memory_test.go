package memstore

import (
	"testing"

	"newsrag/internal/adapter/store"
	"newsrag/internal/adapter/store/storetest"
	"newsrag/internal/port"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, dim int, strict bool) port.Store {
		return NewMemoryStore(store.Options{Dimension: dim, StrictModel: strict})
	})
}
