package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilCallbacksAreSafe(t *testing.T) {
	var c *Callbacks
	assert.NotPanics(t, func() {
		c.Step("Search GPU", StepActive)
		c.Progress("download", 10, 100)
		c.Download("model.safetensors", 1024, time.Second)
	})

	empty := &Callbacks{}
	assert.NotPanics(t, func() {
		empty.Step("Search GPU", StepDone)
		empty.Progress("download", 10, 100)
		empty.Download("model.safetensors", 1024, time.Second)
	})
}

func TestCallbacksDispatch(t *testing.T) {
	var steps, downloads int
	c := &Callbacks{
		OnStep:     func(step string, state StepState) { steps++ },
		OnDownload: func(name string, bytes int64, elapsed time.Duration) { downloads++ },
	}
	c.Step("Create Instance", StepActive)
	c.Download("m", 1, time.Second)
	c.Progress("x", 1, 2) // nil slot, no-op
	assert.Equal(t, 1, steps)
	assert.Equal(t, 1, downloads)
}

func TestStepStateString(t *testing.T) {
	assert.Equal(t, "pending", StepPending.String())
	assert.Equal(t, "active", StepActive.String())
	assert.Equal(t, "done", StepDone.String())
	assert.Equal(t, "failed", StepFailed.String())
}
