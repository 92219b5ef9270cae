package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/canonical/charm-refresh/internal/controller/precheck"
	"github.com/canonical/charm-refresh/internal/filedatabag"
	"github.com/canonical/charm-refresh/pkg/refreshk8s"
	"github.com/canonical/charm-refresh/pkg/state"
	"github.com/canonical/charm-refresh/pkg/unit"
	"github.com/canonical/charm-refresh/pkg/version"
	"github.com/canonical/charm-refresh/refresh"
)

// sharedFlags collects the cluster-identity and pin flags every
// subcommand needs to assemble a refresh.Kubernetes, the way
// cloudnative-pg's plugin commands each bind their own --namespace/
// --context flags off a common set.
type sharedFlags struct {
	namespace     string
	appName       string
	unit          string
	leader        bool
	containerName string

	pinnedCharm            string
	pinnedWorkloadVersion  string
	pinnedContainerDigest  string
	installedCharm         string
	installedWorkloadVersion string

	databagFile string
	localDir    string
	rollback    string
}

func (f *sharedFlags) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.namespace, "namespace", "", "namespace the application's StatefulSet lives in")
	flags.StringVar(&f.appName, "app", "", "application (StatefulSet) name")
	flags.StringVar(&f.unit, "unit", "", "this unit's name, e.g. myapp/0")
	flags.BoolVar(&f.leader, "leader", false, "whether this unit is the application leader")
	flags.StringVar(&f.containerName, "container", "", "workload container name to probe for image digest")

	flags.StringVar(&f.pinnedCharm, "pinned-charm-version", "", "charm-bundle-pinned charm version, e.g. 14/1.12.0")
	flags.StringVar(&f.pinnedWorkloadVersion, "pinned-workload-version", "", "charm-bundle-pinned workload_version")
	flags.StringVar(&f.pinnedContainerDigest, "pinned-container-digest", "", "charm-bundle-pinned workload container digest")
	flags.StringVar(&f.installedCharm, "installed-charm-version", "", "this unit's installed charm version")
	flags.StringVar(&f.installedWorkloadVersion, "installed-workload-version", "", "this unit's installed workload_version")

	flags.StringVar(&f.databagFile, "databag-file", "", "path to a JSON file standing in for the peer relation databag")
	flags.StringVar(&f.localDir, "local-state-dir", "", "path to this unit's local per-pod state directory")
	flags.StringVar(&f.rollback, "rollback-command", "juju refresh <app> --revision=<original>", "rollback command to surface to the operator")
}

// build assembles a refresh.Kubernetes against a live cluster and a
// file-backed databag stand-in for the relation transport named in
// spec.md §1 as an external collaborator.
func (f *sharedFlags) build() (*refresh.Kubernetes, error) {
	self, err := unit.ParseID(f.unit)
	if err != nil {
		return nil, err
	}
	if f.namespace == "" || f.appName == "" || f.containerName == "" {
		return nil, fmt.Errorf("--namespace, --app and --container are required")
	}

	c, authClient, err := buildClients()
	if err != nil {
		return nil, fmt.Errorf("building kubernetes clients: %w", err)
	}

	bag, err := filedatabag.Load(f.databagFile, self)
	if err != nil {
		return nil, err
	}
	store := state.New(bag, self, f.localDir)

	var pinnedCharm, installedCharm version.CharmVersion
	if f.pinnedCharm != "" {
		if pinnedCharm, err = version.Parse(f.pinnedCharm); err != nil {
			return nil, fmt.Errorf("--pinned-charm-version: %w", err)
		}
	}
	if f.installedCharm != "" {
		if installedCharm, err = version.Parse(f.installedCharm); err != nil {
			return nil, fmt.Errorf("--installed-charm-version: %w", err)
		}
	}

	return &refresh.Kubernetes{
		Probe: &refreshk8s.Probe{
			Client:        c,
			AuthClient:    authClient,
			Namespace:     f.namespace,
			AppName:       f.appName,
			ContainerName: f.containerName,
		},
		Store:    store,
		Self:     self,
		IsLeader: f.leader,
		Pinned: precheck.Pins{
			Charm:                   pinnedCharm,
			WorkloadContainerDigest: f.pinnedContainerDigest,
		},
		PinnedWorkloadVersion:    f.pinnedWorkloadVersion,
		InstalledWorkloadVersion: f.installedWorkloadVersion,
		InstalledCharm:           installedCharm,
		RollbackCommand:          f.rollback,
	}, nil
}
