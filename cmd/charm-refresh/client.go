package main

import (
	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"k8s.io/client-go/kubernetes"
)

var scheme = runtime.NewScheme()

func init() {
	_ = clientgoscheme.AddToScheme(scheme)
	_ = appsv1.AddToScheme(scheme)
}

// buildClients constructs the controller-runtime client the Probe reads
// and patches the StatefulSet with, and the typed clientset it issues the
// SelfSubjectAccessReview through, both against the in-cluster or
// kubeconfig-resolved config the way cmd/pgk's createKubernetesClient
// does for cloudnative-pg's own CLI.
func buildClients() (client.Client, kubernetes.Interface, error) {
	cfg := ctrl.GetConfigOrDie()

	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, nil, err
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, clientset, nil
}
