package refresh

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appsv1 "k8s.io/api/apps/v1"
	authorizationv1 "k8s.io/api/authorization/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/canonical/charm-refresh/internal/controller/precheck"
	"github.com/canonical/charm-refresh/pkg/refreshk8s"
	"github.com/canonical/charm-refresh/pkg/state"
	"github.com/canonical/charm-refresh/pkg/unit"
)

type fakeBag struct {
	units map[unit.Id]map[string]string
	app   map[string]string
	self  unit.Id
}

func newFakeBag(self unit.Id) *fakeBag {
	return &fakeBag{units: map[unit.Id]map[string]string{}, app: map[string]string{}, self: self}
}

func (b *fakeBag) UnitValue(u unit.Id, key string) (string, bool) {
	v, ok := b.units[u][key]
	return v, ok
}

func (b *fakeBag) SetUnitValue(key, value string) error {
	section, ok := b.units[b.self]
	if !ok {
		section = map[string]string{}
		b.units[b.self] = section
	}
	section[key] = value
	return nil
}

func (b *fakeBag) AppValue(key string) (string, bool) {
	v, ok := b.app[key]
	return v, ok
}

func (b *fakeBag) SetAppValue(key, value string) error {
	b.app[key] = value
	return nil
}

func allowingAuthClient() *k8sfake.Clientset {
	clientset := k8sfake.NewSimpleClientset()
	clientset.PrependReactor("create", "selfsubjectaccessreviews", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, &authorizationv1.SelfSubjectAccessReview{
			Status: authorizationv1.SubjectAccessReviewStatus{Allowed: true},
		}, nil
	})
	return clientset
}

func denyingAuthClient() *k8sfake.Clientset {
	clientset := k8sfake.NewSimpleClientset()
	clientset.PrependReactor("create", "selfsubjectaccessreviews", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, &authorizationv1.SelfSubjectAccessReview{
			Status: authorizationv1.SubjectAccessReviewStatus{Allowed: false},
		}, nil
	})
	return clientset
}

func testScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	Expect(appsv1.AddToScheme(scheme)).To(Succeed())
	Expect(corev1.AddToScheme(scheme)).To(Succeed())
	return scheme
}

func podWithRevision(app string, ordinal int, hash string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s-%d", app, ordinal),
			Namespace: "test",
			Labels: map[string]string{
				refreshk8s.ControllerRevisionLabel: hash,
				"app.kubernetes.io/name":           app,
			},
		},
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "workload", ImageID: "workload@sha256:" + hash},
			},
		},
	}
}

var _ = Describe("Kubernetes.Next", func() {
	var (
		self unit.Id
		sts  *appsv1.StatefulSet
	)

	BeforeEach(func() {
		self = unit.Id{App: "myapp", Ordinal: 1}
		sts = &appsv1.StatefulSet{
			ObjectMeta: metav1.ObjectMeta{Name: "myapp", Namespace: "test"},
			Status:     appsv1.StatefulSetStatus{UpdateRevision: "new"},
		}
	})

	It("aborts cleanly and sets a blocked app status when the SSAR denies statefulset patch access", func() {
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: denyingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store: state.New(newFakeBag(self), self, GinkgoT().TempDir()),
			Self:  self,
		}
		out, err := k.Next(context.Background(), Event{Kind: ConfigChanged})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.AppStatus).NotTo(BeNil())
		Expect(out.AppStatus.Message).To(ContainSubstring("juju trust myapp"))
	})

	It("reports the routine unit status when no refresh is in progress", func() {
		pods := []runtime.Object{
			podWithRevision("myapp", 1, "new"),
			podWithRevision("myapp", 0, "new"),
		}
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).WithRuntimeObjects(pods...).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: allowingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store:                    state.New(newFakeBag(self), self, GinkgoT().TempDir()),
			Self:                     self,
			Pinned:                   precheck.Pins{WorkloadContainerDigest: "sha256:new"},
			InstalledWorkloadVersion: "1.13.0",
		}
		// This unit must have published a pause_after preference at least
		// once, the way config-changed does on every real unit before
		// steady state; otherwise EffectivePauseAfter reads as UNKNOWN and
		// blocks app status regardless of in_progress.
		Expect(k.Store.SetPauseAfterConfig("none")).To(Succeed())
		out, err := k.Next(context.Background(), Event{Kind: ConfigChanged})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.AppStatus).To(BeNil())
		Expect(out.UnitStatusHigher).To(BeNil())
		Expect(out.UnitStatusLower.Message).To(ContainSubstring("1.13.0"))
	})

	It("blocks the first refreshed unit's workload from starting until PrecheckGate records success", func() {
		pods := []runtime.Object{
			podWithRevision("myapp", 1, "new"),
			podWithRevision("myapp", 0, "old"),
		}
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).WithRuntimeObjects(pods...).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: allowingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store: state.New(newFakeBag(self), self, GinkgoT().TempDir()),
			Self:  self,
		}
		allowed, err := k.WorkloadAllowedToStart(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse(), "the first unit to refresh must not start until PrecheckGate records success")

		Expect(k.Store.SetRefreshStarted("new")).To(Succeed())
		allowed, err = k.WorkloadAllowedToStart(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
	})

	It("raises the partition as a stop-event safety guard even on a non-leader unit (S5)", func() {
		partition := int32(0)
		sts.Spec.UpdateStrategy.RollingUpdate = &appsv1.RollingUpdateStatefulSetStrategy{Partition: &partition}
		pods := []runtime.Object{podWithRevision("myapp", 1, "old")}
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).WithRuntimeObjects(pods...).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: allowingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store:    state.New(newFakeBag(self), self, GinkgoT().TempDir()),
			Self:     self,
			IsLeader: false,
		}
		_, err := k.Next(context.Background(), Event{Kind: Stop, Departing: false})
		Expect(err).NotTo(HaveOccurred())

		var patched appsv1.StatefulSet
		Expect(c.Get(context.Background(), client.ObjectKey{Namespace: "test", Name: "myapp"}, &patched)).To(Succeed())
		Expect(patched.Spec.UpdateStrategy.RollingUpdate.Partition).NotTo(BeNil())
		Expect(*patched.Spec.UpdateStrategy.RollingUpdate.Partition).To(Equal(int32(1)))
	})

	It("does not raise the partition on a stop event for a departing (tearing-down) unit", func() {
		partition := int32(0)
		sts.Spec.UpdateStrategy.RollingUpdate = &appsv1.RollingUpdateStatefulSetStrategy{Partition: &partition}
		pods := []runtime.Object{podWithRevision("myapp", 1, "old")}
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).WithRuntimeObjects(pods...).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: allowingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store:    state.New(newFakeBag(self), self, GinkgoT().TempDir()),
			Self:     self,
			IsLeader: false,
		}
		_, err := k.Next(context.Background(), Event{Kind: Stop, Departing: true})
		Expect(err).NotTo(HaveOccurred())

		var patched appsv1.StatefulSet
		Expect(c.Get(context.Background(), client.ObjectKey{Namespace: "test", Name: "myapp"}, &patched)).To(Succeed())
		Expect(*patched.Spec.UpdateStrategy.RollingUpdate.Partition).To(Equal(int32(0)))
	})

	It("allows a unit other than the first refreshed one to start unconditionally", func() {
		second := unit.Id{App: "myapp", Ordinal: 0}
		pods := []runtime.Object{
			podWithRevision("myapp", 1, "new"),
			podWithRevision("myapp", 0, "old"),
		}
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).WithRuntimeObjects(pods...).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: allowingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store: state.New(newFakeBag(second), second, GinkgoT().TempDir()),
			Self:  second,
		}
		allowed, err := k.WorkloadAllowedToStart(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
	})

	It("records and reads back next_unit_allowed_to_refresh for the current app controller revision", func() {
		pods := []runtime.Object{podWithRevision("myapp", 1, "new")}
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).WithRuntimeObjects(pods...).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: allowingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store: state.New(newFakeBag(self), self, GinkgoT().TempDir()),
			Self:  self,
		}
		allowed, err := k.NextUnitAllowedToRefresh(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse(), "nothing has been recorded yet")

		Expect(k.SetNextUnitAllowedToRefresh(context.Background())).To(Succeed())

		allowed, err = k.NextUnitAllowedToRefresh(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
	})
})

var _ = Describe("pre-refresh-check action", func() {
	It("rejects a non-leader via Next's action-handling path", func() {
		self := unit.Id{App: "myapp", Ordinal: 0}
		sts := &appsv1.StatefulSet{
			ObjectMeta: metav1.ObjectMeta{Name: "myapp", Namespace: "test"},
			Status:     appsv1.StatefulSetStatus{UpdateRevision: "new"},
		}
		pods := []runtime.Object{podWithRevision("myapp", 0, "new")}
		c := fake.NewClientBuilder().WithScheme(testScheme()).WithObjects(sts).WithRuntimeObjects(pods...).Build()
		k := &Kubernetes{
			Probe: &refreshk8s.Probe{
				Client: c, AuthClient: allowingAuthClient(),
				Namespace: "test", AppName: "myapp", ContainerName: "workload",
			},
			Store:    state.New(newFakeBag(self), self, GinkgoT().TempDir()),
			Self:     self,
			IsLeader: false,
			Pinned:   precheck.Pins{WorkloadContainerDigest: "sha256:new"},
		}
		out, err := k.Next(context.Background(), Event{
			Kind:   ActionEvent,
			Action: &ActionRequest{Name: "pre-refresh-check"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.ActionErr).To(HaveOccurred())
		Expect(out.ActionResult).To(BeNil())
	})
})
