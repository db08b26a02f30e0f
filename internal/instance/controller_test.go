package instance

import (
	"testing"
	"time"

	"github.com/ndrandal/marketsim/internal/factory"
	"github.com/ndrandal/marketsim/internal/marketerr"
	"github.com/ndrandal/marketsim/internal/series"
	"github.com/ndrandal/marketsim/internal/template"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	fac := factory.New(template.NewProvider(), factory.Options{PoolSize: 2, TickFPS: 30, PushBufferSize: 16})
	return New(fac)
}

func waitForComplete(t *testing.T, c *Controller, requestId string) factory.ProgressRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := c.GetProgress(requestId)
		if err == nil && (rec.Stage == factory.StageComplete || rec.Stage == factory.StageError) {
			return rec
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for request to complete")
	return factory.ProgressRecord{}
}

func TestCreateRegistersInstanceOnCompletion(t *testing.T) {
	c := newTestController(t)

	instanceId, requestId, err := c.Create("T2-conservative", "sandbox", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := waitForComplete(t, c, requestId)
	if rec.Stage != factory.StageComplete {
		t.Fatalf("Stage = %v, want Complete", rec.Stage)
	}

	details, err := c.GetDetails(instanceId, "")
	if err != nil {
		t.Fatalf("GetDetails: %v", err)
	}
	if details.StockCount != 2 || details.TraderCount != 1 {
		t.Fatalf("StockCount=%d TraderCount=%d, want 2/1", details.StockCount, details.TraderCount)
	}

	defer c.Destroy(instanceId, "")
}

func TestGetDetailsUnknownInstanceFails(t *testing.T) {
	c := newTestController(t)
	if _, err := c.GetDetails("nope", ""); err == nil {
		t.Fatal("expected error for unknown instance")
	}
}

func TestDestroyRemovesFromList(t *testing.T) {
	c := newTestController(t)
	instanceId, requestId, err := c.Create("T2-conservative", "sandbox", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, c, requestId)

	if len(c.List("")) != 1 {
		t.Fatalf("List() len = %d, want 1", len(c.List("")))
	}
	if err := c.Destroy(instanceId, ""); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if len(c.List("")) != 0 {
		t.Fatalf("List() len after destroy = %d, want 0", len(c.List("")))
	}
}

func TestListFiltersByOwner(t *testing.T) {
	c := newTestController(t)
	aliceId, aliceReq, err := c.Create("T2-conservative", "alice-sandbox", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, c, aliceReq)
	defer c.Destroy(aliceId, "alice")

	bobId, bobReq, err := c.Create("T2-conservative", "bob-sandbox", "bob")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, c, bobReq)
	defer c.Destroy(bobId, "bob")

	aliceList := c.List("alice")
	if len(aliceList) != 1 || aliceList[0].Id != aliceId {
		t.Fatalf("List(alice) = %+v, want only %s", aliceList, aliceId)
	}

	if len(c.List("")) != 2 {
		t.Fatalf("List(\"\") len = %d, want 2", len(c.List("")))
	}
}

func TestGetDetailsForbiddenForNonOwner(t *testing.T) {
	c := newTestController(t)
	instanceId, requestId, err := c.Create("T2-conservative", "sandbox", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, c, requestId)
	defer c.Destroy(instanceId, "alice")

	if _, err := c.GetDetails(instanceId, "bob"); err == nil {
		t.Fatal("expected Forbidden for non-owner")
	}
}

func TestDestroyWhileBuildingFailsWithInstanceBusy(t *testing.T) {
	c := newTestController(t)

	// Simulate the window between Create reserving an id and the
	// factory's OnComplete hook registering it, without racing the
	// real pipeline's timing.
	c.mu.Lock()
	c.requestIns["req-1"] = "inst-1"
	c.insReq["inst-1"] = "req-1"
	c.mu.Unlock()

	err := c.Destroy("inst-1", "")
	if err == nil {
		t.Fatal("expected error destroying an instance still building")
	}
	if merr, ok := marketerr.As(err); !ok || merr.Code != marketerr.InstanceBusy {
		t.Fatalf("expected InstanceBusy, got %v", err)
	}
}

func TestSetAccelerationValidatesRange(t *testing.T) {
	c := newTestController(t)
	instanceId, requestId, err := c.Create("T2-conservative", "sandbox", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, c, requestId)
	defer c.Destroy(instanceId, "")

	if err := c.SetAcceleration(instanceId, 5000); err == nil {
		t.Fatal("expected error for out-of-range acceleration")
	}
	if err := c.SetAcceleration(instanceId, 2.0); err != nil {
		t.Fatalf("SetAcceleration: %v", err)
	}
}

func TestGetKLineKnownStockSucceeds(t *testing.T) {
	c := newTestController(t)
	instanceId, requestId, err := c.Create("T2-conservative", "sandbox", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, c, requestId)
	defer c.Destroy(instanceId, "")

	// give the tick loop a moment to emit at least one point
	time.Sleep(100 * time.Millisecond)

	_, err = c.GetKLine(instanceId, "AAA", series.Granularity1m, time.Time{}, time.Now().Add(time.Hour), 100)
	if err != nil {
		t.Fatalf("GetKLine: %v", err)
	}
}
