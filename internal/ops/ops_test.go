package ops

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/testutil"
)

func testEnv(t *testing.T, fleet *testutil.FakeFleet, cps, workers string) *Env {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Global.DataDir = t.TempDir()
	cfg.Diagnostics.Enabled = false
	cfg.Remote.CommandTimeout = time.Minute
	cfg.Remote.PollInterval = 10 * time.Millisecond

	cpList, err := nodes.ParseList(cps, cfg.Global.DefaultUser)
	if err != nil {
		t.Fatalf("parse control planes: %v", err)
	}
	var workerList *nodes.List
	if workers != "" {
		workerList, err = nodes.ParseList(workers, cfg.Global.DefaultUser)
		if err != nil {
			t.Fatalf("parse workers: %v", err)
		}
	} else {
		workerList = nodes.FromAddresses()
	}

	env := &Env{
		Config:        cfg,
		Factory:       fleet,
		ControlPlanes: cpList,
		Workers:       workerList,
		Out:           &bytes.Buffer{},
		Cleanup:       &orchestrate.CleanupStack{},
	}
	t.Cleanup(func() { env.Cleanup.Run(context.Background()) })
	return env
}

// seedClusterResponses scripts the queries every operation makes.
func seedClusterResponses(fleet *testutil.FakeFleet) {
	fleet.Respond("hostname", "node-a\n")
	fleet.Respond("kubeletVersion", "v1.31.0\n")
	fleet.Respond("kubeadm version", "v1.31.0\n")
	fleet.Respond("print-join-command",
		"kubeadm join 10.0.0.1:6443 --token s0u8nv.w9qkbyfvrhhev32g --discovery-token-ca-cert-hash sha256:abc123\n")
	fleet.Respond("print-certificate-key", "f8902e114ef118304e561c3ecd4d0b543adc226b7a07f675f56564185ffe0c07\n")
	fleet.Respond("resolve-patch 1.31", "1.31.9")
	fleet.Respond("resolve-patch 1.32", "1.32.5")
	fleet.Respond("--raw=/readyz", "ok\n")
}
