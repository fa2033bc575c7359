package testutil

import (
	"testing"

	"github.com/starford/gtmkit/internal/plansync"
)

func TestTestManager_SyncsOverview(t *testing.T) {
	db := TestJournal(t)
	mgr, store := TestManager(t, plansync.WithRecorder(db))
	WriteFile(t, store, "acme/json_output/overview.json", OverviewJSON)

	res, err := mgr.SyncStep("acme", "overview", plansync.SyncOptions{AutoResolve: true})
	if err != nil || !res.Success {
		t.Fatalf("sync = %+v, %v", res, err)
	}
	if _, total, err := db.List("acme", 10, 0); err != nil || total != 1 {
		t.Errorf("journal total = %d, %v", total, err)
	}
}
