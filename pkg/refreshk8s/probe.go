package refreshk8s

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	authorizationv1 "k8s.io/api/authorization/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/canonical/charm-refresh/pkg/refresherr"
	"github.com/canonical/charm-refresh/pkg/unit"
)

// ControllerRevisionLabel is the label Kubernetes stamps on every pod
// created by a StatefulSet, naming the revision that produced it.
const ControllerRevisionLabel = "controller-revision-hash"

// Probe is ClusterProbe: a read-only view of one application's
// StatefulSet and Pods, plus the RBAC self-check. Its one write is
// SetPartition, which refresh.Kubernetes calls to apply
// PartitionController's decisions and the stop-event guard, through the
// same client.Client.
type Probe struct {
	// Client reads the StatefulSet and lists Pods.
	Client client.Client
	// AuthClient issues the SelfSubjectAccessReview. Kept separate from
	// Client because SSAR is a non-persisted, create-only subresource
	// that client-go's typed clientset models more directly than
	// controller-runtime's generic client.
	AuthClient kubernetes.Interface

	Namespace string
	AppName   string
	// ContainerName is the workload container whose image/digest this
	// probe reports, resolved by the caller from metadata.yaml's
	// containers.<name>.resource mapping (manifest parsing is an
	// external collaborator; see spec.md section 1).
	ContainerName string
}

// Fetch builds a ClusterSnapshot for the current event.
func (p *Probe) Fetch(ctx context.Context, thisUnit unit.Id, isLeader bool) (ClusterSnapshot, error) {
	allowed, err := p.checkRBAC(ctx)
	if err != nil {
		return ClusterSnapshot{}, fmt.Errorf("checking statefulset patch access: %w", err)
	}
	if !allowed {
		return ClusterSnapshot{ThisUnit: thisUnit, IsLeader: isLeader, RBACPatchAllowed: false},
			&refresherr.NotTrusted{App: p.AppName}
	}

	var sts appsv1.StatefulSet
	if err := p.Client.Get(ctx, types.NamespacedName{Namespace: p.Namespace, Name: p.AppName}, &sts); err != nil {
		return ClusterSnapshot{}, fmt.Errorf("getting statefulset %s/%s: %w", p.Namespace, p.AppName, err)
	}

	var podList corev1.PodList
	if err := p.Client.List(ctx, &podList,
		client.InNamespace(p.Namespace),
		client.MatchingLabels{"app.kubernetes.io/name": p.AppName}); err != nil {
		return ClusterSnapshot{}, fmt.Errorf("listing pods for %s/%s: %w", p.Namespace, p.AppName, err)
	}

	units := make([]UnitSnapshot, 0, len(podList.Items))
	for i := range podList.Items {
		pod := &podList.Items[i]

		revisionHash, ok := pod.Labels[ControllerRevisionLabel]
		if !ok {
			// Pod not yet labeled (still Pending): treat as not observed
			// rather than erroring snapshot construction.
			continue
		}

		ordinal, err := ordinalFromPodName(pod.Name, p.AppName)
		if err != nil {
			continue
		}

		imageName, digest := containerImageAndDigest(pod, p.ContainerName)

		units = append(units, UnitSnapshot{
			UnitID:                 unit.Id{App: p.AppName, Ordinal: ordinal},
			ControllerRevisionHash: revisionHash,
			ContainerDigest:        digest,
			WorkloadImageName:      imageName,
		})
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].UnitID.Ordinal > units[j].UnitID.Ordinal
	})

	partition := int32(0)
	if sts.Spec.UpdateStrategy.RollingUpdate != nil && sts.Spec.UpdateStrategy.RollingUpdate.Partition != nil {
		partition = *sts.Spec.UpdateStrategy.RollingUpdate.Partition
	}

	return ClusterSnapshot{
		AppControllerRevision: sts.Status.UpdateRevision,
		Units:                 units,
		ThisUnit:              thisUnit,
		IsLeader:              isLeader,
		RBACPatchAllowed:      true,
		Partition:             partition,
	}, nil
}

func (p *Probe) checkRBAC(ctx context.Context) (bool, error) {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Namespace: p.Namespace,
				Verb:      "patch",
				Group:     "apps",
				Resource:  "statefulsets",
				Name:      p.AppName,
			},
		},
	}
	result, err := p.AuthClient.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return false, err
	}
	return result.Status.Allowed, nil
}

// SetPartition patches spec.updateStrategy.rollingUpdate.partition via a
// JSON merge patch, the only write this module performs against the
// StatefulSet.
func (p *Probe) SetPartition(ctx context.Context, partition int32) error {
	sts := &appsv1.StatefulSet{}
	sts.Namespace = p.Namespace
	sts.Name = p.AppName
	patch := []byte(fmt.Sprintf(
		`{"spec":{"updateStrategy":{"rollingUpdate":{"partition":%d}}}}`, partition))
	return p.Client.Patch(ctx, sts, client.RawPatch(types.MergePatchType, patch))
}

// ordinalFromPodName extracts the trailing "-<ordinal>" StatefulSet pod
// ordinal.
func ordinalFromPodName(podName, appName string) (int, error) {
	prefix := appName + "-"
	if !strings.HasPrefix(podName, prefix) {
		return 0, fmt.Errorf("pod %q does not belong to statefulset %q", podName, appName)
	}
	return strconv.Atoi(strings.TrimPrefix(podName, prefix))
}

// containerImageAndDigest finds containerName's status on pod and splits
// its imageID at "@" into (image name, digest). A digest not beginning
// with "sha256:" or a missing container status yields empty strings
// rather than an error: the caller treats an empty digest as "unit not
// yet reporting," matching the not-yet-ready handling the rest of this
// package gives absent pods.
func containerImageAndDigest(pod *corev1.Pod, containerName string) (imageName, digest string) {
	for _, status := range pod.Status.ContainerStatuses {
		if status.Name != containerName {
			continue
		}
		name, d, ok := strings.Cut(status.ImageID, "@")
		if !ok || !strings.HasPrefix(d, "sha256:") {
			return "", ""
		}
		return name, d
	}
	return "", ""
}
