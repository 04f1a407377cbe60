package memorypricecachefx

import (
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/discochess/pricecache"
	"github.com/discochess/pricecache/internal/store/memstore"
)

func TestModule(t *testing.T) {
	var (
		client *pricecache.Client
		store  *memstore.Store
	)

	app := fxtest.New(t,
		fx.Supply(zap.NewNop()),
		Module,
		fx.Populate(&client, &store),
	)
	app.RequireStart()

	if !client.Stats().Initialized {
		t.Error("client not initialized after start")
	}
	if keys := store.Keys(); len(keys) != 1 {
		t.Errorf("store keys = %v, want the version marker", keys)
	}

	app.RequireStop()
	if err := client.Close(); err == nil {
		t.Error("Close() after stop = nil, want ErrClosed")
	}
}
