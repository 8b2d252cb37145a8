package runtime

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nebulous-runtime/hhgc/modules"
)

func TestNewPoolWithEmptyLogPathLeavesLogNil(t *testing.T) {
	p := newTestPool(t, 2)
	defer p.Close()

	assert.Nil(t, p.Log())
	assert.NotNil(t, p.Arena())
}

func TestNewPoolOpensLoggerWhenPathGiven(t *testing.T) {
	cfg := modules.DefaultConfig()
	logPath := filepath.Join(t.TempDir(), "pool.log")

	p, err := NewPool(cfg, 1, logPath)
	assert.NoError(t, err)
	assert.NotNil(t, p.Log())

	assert.NoError(t, p.Close())
}

func TestPoolGoRunsFnAndCloseWaitsForIt(t *testing.T) {
	p := newTestPool(t, 1)

	done := make(chan struct{})
	err := p.Go(func() {
		time.Sleep(10 * time.Millisecond)
		close(done)
	})
	assert.NoError(t, err)

	assert.NoError(t, p.Close())
	select {
	case <-done:
	default:
		t.Fatal("Close returned before the goroutine registered via Go finished")
	}
}

func TestPoolStopChanClosesOnClose(t *testing.T) {
	p := newTestPool(t, 1)
	stop := p.StopChan()

	select {
	case <-stop:
		t.Fatal("StopChan must not be closed before Close is called")
	default:
	}

	assert.NoError(t, p.Close())
	select {
	case <-stop:
	default:
		t.Fatal("StopChan must be closed after Close")
	}
}

func TestNewPoolPropagatesZeroWorkers(t *testing.T) {
	p := newTestPool(t, 0)
	defer p.Close()

	assert.Len(t, p.Workers(), 0)
	_, _, ok := p.Steal(0)
	assert.False(t, ok)
}
