package vast

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/comfycloud/lazymodels/pkg/events"
)

// Pipeline step names, in execution order.
const (
	StepSearch     = "Search GPU"
	StepCreate     = "Create Instance"
	StepLoading    = "Loading Image"
	StepConnecting = "Connecting"
	StepReady      = "Ready"
)

// PipelineSteps lists the provisioning steps in order, for display.
var PipelineSteps = []string{StepSearch, StepCreate, StepLoading, StepConnecting, StepReady}

// ProvisionConfig configures one provisioning run.
type ProvisionConfig struct {
	Query  OfferQuery
	Create CreateRequest
	// Port is the serving process port whose public mapping marks the
	// instance reachable. Defaults to 8188.
	Port int
	// PollInterval between instance status checks. Defaults to 10s.
	PollInterval time.Duration
	// Timeout bounds the wait for the instance to come up. Defaults to
	// 15m, sized for a cold image pull.
	Timeout time.Duration
	// Events receives step transitions.
	Events *events.Callbacks
}

// Provision searches for the cheapest matching offer, rents it, and waits
// until the serving port is reachable. On failure after rental, the
// instance is left running for the caller to inspect or destroy.
func (c *Client) Provision(ctx context.Context, cfg ProvisionConfig) (*Instance, error) {
	if cfg.Port == 0 {
		cfg.Port = 8188
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	cb := cfg.Events

	cb.Step(StepSearch, events.StepActive)
	offers, err := c.SearchOffers(ctx, cfg.Query)
	if err != nil {
		cb.Step(StepSearch, events.StepFailed)
		return nil, err
	}
	if len(offers) == 0 {
		cb.Step(StepSearch, events.StepFailed)
		return nil, errors.Errorf("no %s offers within $%.2f/hr", cfg.Query.GPUName, cfg.Query.MaxPrice)
	}
	offer := offers[0]
	c.log.Infof("selected %s at $%.3f/hr (offer %d)", offer.GPUName, offer.DPHTotal, offer.ID)
	cb.Step(StepSearch, events.StepDone)

	cb.Step(StepCreate, events.StepActive)
	id, err := c.CreateInstance(ctx, offer.ID, cfg.Create)
	if err != nil {
		cb.Step(StepCreate, events.StepFailed)
		return nil, err
	}
	c.log.Infof("rented instance %d", id)
	cb.Step(StepCreate, events.StepDone)

	instance, err := c.waitReachable(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	cb.Step(StepReady, events.StepDone)
	return instance, nil
}

// waitReachable polls until the instance is running and the serving port
// has a public mapping.
func (c *Client) waitReachable(ctx context.Context, id int64, cfg ProvisionConfig) (*Instance, error) {
	cb := cfg.Events
	cb.Step(StepLoading, events.StepActive)
	connecting := false

	deadline := time.Now().Add(cfg.Timeout)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			if connecting {
				cb.Step(StepConnecting, events.StepFailed)
			} else {
				cb.Step(StepLoading, events.StepFailed)
			}
			return nil, errors.Errorf("instance %d not reachable after %s", id, cfg.Timeout)
		}

		instance, err := c.Instance(ctx, id)
		if err != nil {
			c.log.Debugf("instance poll failed: %v", err)
			continue
		}
		if !instance.Running() {
			continue
		}
		if !connecting {
			cb.Step(StepLoading, events.StepDone)
			cb.Step(StepConnecting, events.StepActive)
			connecting = true
		}
		if instance.URL(cfg.Port) != "" {
			cb.Step(StepConnecting, events.StepDone)
			return instance, nil
		}
	}
}
