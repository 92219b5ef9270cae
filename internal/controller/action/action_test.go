package action

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/canonical/charm-refresh/pkg/refresherr"
	"github.com/canonical/charm-refresh/pkg/unit"
	"github.com/canonical/charm-refresh/pkg/version"
)

func asInvalidAction(err error) *refresherr.InvalidAction {
	var invalid *refresherr.InvalidAction
	if !errors.As(err, &invalid) {
		return nil
	}
	return invalid
}

var _ = Describe("ValidatePreRefreshCheck", func() {
	It("rejects a non-leader", func() {
		Expect(asInvalidAction(ValidatePreRefreshCheck(false, false))).NotTo(BeNil())
	})
	It("rejects when a refresh is already in progress", func() {
		Expect(asInvalidAction(ValidatePreRefreshCheck(true, true))).NotTo(BeNil())
	})
	It("accepts a leader with no refresh in progress", func() {
		Expect(ValidatePreRefreshCheck(true, false)).To(BeNil())
	})
})

var _ = Describe("ForceRefreshStartParams.AnySkipped", func() {
	It("is false when every check is requested", func() {
		p := ForceRefreshStartParams{CheckWorkloadContainer: true, CheckCompatibility: true, RunPreRefreshChecks: true}
		Expect(p.AnySkipped()).To(BeFalse())
	})
	It("is true when any check is skipped", func() {
		p := ForceRefreshStartParams{CheckWorkloadContainer: false, CheckCompatibility: true, RunPreRefreshChecks: true}
		Expect(p.AnySkipped()).To(BeTrue())
	})
})

var _ = Describe("ValidateForceRefreshStart", func() {
	full := ForceRefreshStartParams{CheckWorkloadContainer: true, CheckCompatibility: true, RunPreRefreshChecks: true}
	partial := ForceRefreshStartParams{CheckWorkloadContainer: false, CheckCompatibility: true, RunPreRefreshChecks: true}

	It("rejects a unit that is not the first to refresh", func() {
		Expect(asInvalidAction(ValidateForceRefreshStart(false, true, partial))).NotTo(BeNil())
	})
	It("rejects when no refresh is in progress", func() {
		Expect(asInvalidAction(ValidateForceRefreshStart(true, false, partial))).NotTo(BeNil())
	})
	It("rejects when every check would still run (a no-op)", func() {
		Expect(asInvalidAction(ValidateForceRefreshStart(true, true, full))).NotTo(BeNil())
	})
	It("accepts the first unit, in progress, with a check skipped", func() {
		Expect(ValidateForceRefreshStart(true, true, partial)).To(BeNil())
	})
})

var _ = Describe("ValidateResumeRefresh", func() {
	It("rejects a non-leader", func() {
		Expect(asInvalidAction(ValidateResumeRefresh(false, true, version.PauseAfterAll, ResumeRefreshParams{}))).NotTo(BeNil())
	})
	It("rejects when no refresh is in progress", func() {
		Expect(asInvalidAction(ValidateResumeRefresh(true, false, version.PauseAfterAll, ResumeRefreshParams{}))).NotTo(BeNil())
	})
	It("rejects pause_after=none with the default health check still requested", func() {
		params := ResumeRefreshParams{CheckHealthOfRefreshedUnits: true}
		Expect(asInvalidAction(ValidateResumeRefresh(true, true, version.PauseAfterNone, params))).NotTo(BeNil())
	})
	It("accepts pause_after=none when the health check is explicitly disabled", func() {
		params := ResumeRefreshParams{CheckHealthOfRefreshedUnits: false}
		Expect(ValidateResumeRefresh(true, true, version.PauseAfterNone, params)).To(BeNil())
	})
	It("accepts pause_after=first with the default health check", func() {
		params := ResumeRefreshParams{CheckHealthOfRefreshedUnits: true}
		Expect(ValidateResumeRefresh(true, true, version.PauseAfterFirst, params)).To(BeNil())
	})
})

var _ = Describe("FailBlockingUnit", func() {
	It("names the blocking unit in the failure reason", func() {
		err := FailBlockingUnit(unit.Id{App: "myapp", Ordinal: 2})
		invalid := asInvalidAction(err)
		Expect(invalid).NotTo(BeNil())
		Expect(invalid.Reason).To(ContainSubstring("myapp/2"))
	})
})

var _ = Describe("PreRefreshCheckResult", func() {
	It("embeds the rollback command in the result message", func() {
		result := PreRefreshCheckResult("juju refresh myapp --revision=1", []string{"ok"})
		Expect(result.Result).To(ContainSubstring("juju refresh myapp --revision=1"))
		Expect(result.Logs).To(Equal([]string{"ok"}))
	})
})
