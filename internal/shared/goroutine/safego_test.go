package goroutine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

func TestSafeGoWG_RecoversPanic(t *testing.T) {
	var wg sync.WaitGroup
	ran := false

	SafeGoWG(&wg, logger.NewNopLogger(), "panicky", func() {
		panic("boom")
	})
	SafeGoWG(&wg, logger.NewNopLogger(), "calm", func() {
		ran = true
	})

	wg.Wait()
	assert.True(t, ran)
}
