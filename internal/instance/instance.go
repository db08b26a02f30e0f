// Package instance is the Instance Controller: the component transport
// and persistence talk to. It owns every live market instance, mediates
// creation through the Instance Factory, and answers the read/command
// surface (list, details, destroy, time, acceleration, kline, export).
// Grounded on the teacher's internal/session.Manager (a single
// RWMutex-guarded map of live resources with register/unregister/list
// methods) and internal/api.Server (composing engine+books+session
// behind a small method set), generalized from "connected websocket
// clients" to "running market instances".
package instance

import (
	"time"

	"github.com/ndrandal/marketsim/internal/factory"
	"github.com/ndrandal/marketsim/internal/market"
	"github.com/ndrandal/marketsim/internal/pushbus"
	"github.com/ndrandal/marketsim/internal/series"
)

// Status is the controller's own coarse view of an instance, distinct
// from the per-object lifecycle states the Lifecycle Manager tracks
// internally.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusDestroyed Status = "destroyed"
)

// Instance is one live market built by the factory: a name, a status,
// and the wiring the factory produced, addressable by the controller's
// own instance id (distinct from any object.Id inside it).
type Instance struct {
	Id         string
	TemplateId string
	Name       string
	OwnerId    string
	CreatedAt  time.Time
	Status     Status

	Build *factory.BuildResult
}

// Exchange is a convenience accessor for the instance's exchange.
func (i *Instance) Exchange() *market.Exchange {
	return i.Build.Exchange
}

// Series is a convenience accessor for the instance's time-series manager.
func (i *Instance) Series() *series.Manager {
	return i.Build.SeriesMgr
}

// Bus is a convenience accessor for the instance's push bus.
func (i *Instance) Bus() *pushbus.Bus {
	return i.Build.Bus
}
