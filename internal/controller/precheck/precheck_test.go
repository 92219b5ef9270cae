package precheck

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/canonical/charm-refresh/pkg/refresherr"
	"github.com/canonical/charm-refresh/pkg/version"
)

var alwaysCompatible CompatibilityCheck = func(version.CharmVersion, version.CharmVersion, string, string) bool {
	return true
}

var _ = Describe("Run", func() {
	pins := Pins{Charm: version.MustParse("14/1.13.0"), WorkloadContainerDigest: "sha256:new"}

	It("takes the rollback fast path when installed matches Original exactly", func() {
		installed := Installed{Charm: version.MustParse("14/1.12.0"), WorkloadContainerDigest: "sha256:old"}
		original := Original{Charm: version.MustParse("14/1.12.0"), WorkloadContainerDigest: "sha256:old", Present: true}

		outcome := Run(pins, installed, original, "1.12.0", "1.13.0",
			func(version.CharmVersion, version.CharmVersion, string, string) bool {
				Fail("compatibility hook must not run on the rollback fast path")
				return false
			},
			func() error {
				Fail("pre-refresh hook must not run on the rollback fast path")
				return nil
			}, ForceParams{})

		Expect(outcome.Started).To(BeTrue())
		Expect(outcome.Failure).To(BeNil())
	})

	It("does not take the fast path on a partial match (same charm, different digest)", func() {
		installed := Installed{Charm: version.MustParse("14/1.12.0"), WorkloadContainerDigest: "sha256:new"}
		original := Original{Charm: version.MustParse("14/1.12.0"), WorkloadContainerDigest: "sha256:old", Present: true}

		ranCompatibility := false
		outcome := Run(pins, installed, original, "1.12.0", "1.13.0",
			func(version.CharmVersion, version.CharmVersion, string, string) bool {
				ranCompatibility = true
				return true
			}, nil, ForceParams{})

		Expect(ranCompatibility).To(BeTrue())
		Expect(outcome.Started).To(BeTrue())
	})

	It("fails the workload container check when the digest does not match the pin", func() {
		installed := Installed{Charm: version.MustParse("14/1.13.0"), WorkloadContainerDigest: "sha256:stale"}
		outcome := Run(pins, installed, Original{}, "1.12.0", "1.13.0", alwaysCompatible, nil, ForceParams{})

		Expect(outcome.Started).To(BeFalse())
		var precheckFailed *refresherr.PrecheckFailed
		Expect(errors.As(outcome.Failure, &precheckFailed)).To(BeTrue())
	})

	It("skips the workload container check when forced", func() {
		installed := Installed{Charm: version.MustParse("14/1.13.0"), WorkloadContainerDigest: "sha256:stale"}
		outcome := Run(pins, installed, Original{}, "1.12.0", "1.13.0", alwaysCompatible, nil,
			ForceParams{SkipWorkloadContainerCheck: true})

		Expect(outcome.Started).To(BeTrue())
	})

	It("fails the compatibility check when the hook returns false", func() {
		installed := Installed{Charm: version.MustParse("14/1.13.0"), WorkloadContainerDigest: "sha256:new"}
		outcome := Run(pins, installed, Original{}, "1.12.0", "1.13.0",
			func(version.CharmVersion, version.CharmVersion, string, string) bool { return false },
			nil, ForceParams{})

		Expect(outcome.Started).To(BeFalse())
		var precheckFailed *refresherr.PrecheckFailed
		Expect(errors.As(outcome.Failure, &precheckFailed)).To(BeTrue())
	})

	It("runs the pre-refresh hook last and surfaces its failure verbatim", func() {
		installed := Installed{Charm: version.MustParse("14/1.13.0"), WorkloadContainerDigest: "sha256:new"}
		hookErr := errors.New("database migration failed")
		outcome := Run(pins, installed, Original{}, "1.12.0", "1.13.0", alwaysCompatible,
			func() error { return hookErr }, ForceParams{})

		Expect(outcome.Started).To(BeFalse())
		Expect(outcome.Failure).To(Equal(hookErr))
	})

	It("succeeds when every check passes", func() {
		installed := Installed{Charm: version.MustParse("14/1.13.0"), WorkloadContainerDigest: "sha256:new"}
		outcome := Run(pins, installed, Original{}, "1.12.0", "1.13.0", alwaysCompatible,
			func() error { return nil }, ForceParams{})

		Expect(outcome.Started).To(BeTrue())
		Expect(outcome.Failure).To(BeNil())
		Expect(outcome.Logs).NotTo(BeEmpty())
	})
})
