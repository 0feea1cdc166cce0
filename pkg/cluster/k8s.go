// Copyright 2024 The Model Factory Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const jobIDLabel = "job_id"

// K8s is the client-go backed Cluster implementation. It deliberately
// keeps to the typed kubernetes.Interface clientset (no dynamic client, no
// CRD scheme registration) because model-factory workloads are plain
// batch/v1 Jobs and apps/v1 Deployments.
type K8s struct {
	client kubernetes.Interface
}

// NewK8s builds a client the same way gtctl's pkg/kube.NewClient does:
// explicit kubeconfig path, falling back to $HOME/.kube/config.
func NewK8s(kubeconfig string) (*K8s, error) {
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		} else {
			return nil, fmt.Errorf("kubeconfig not found")
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("build kube config: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	return &K8s{client: client}, nil
}

// NewK8sInCluster builds a client from the in-pod service account, used by
// components that the cluster itself schedules (trigger runner, syncer).
func NewK8sInCluster() (*K8s, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	return &K8s{client: client}, nil
}

func (k *K8s) CreateJob(ctx context.Context, spec JobSpec) error {
	backoffLimit := int32(0)
	ttl := spec.TTLSecondsAfterFinished

	reqs := corev1.ResourceList{
		corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(spec.CPURequest*1000), resource.DecimalSI),
		corev1.ResourceMemory: resource.MustParse(spec.MemoryRequest),
	}
	if spec.GPURequest > 0 {
		reqs["nvidia.com/gpu"] = *resource.NewQuantity(int64(spec.GPURequest), resource.DecimalSI)
	}

	podSpec := corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyNever,
		Containers: []corev1.Container{
			{
				Name:            spec.JobID,
				Image:           spec.Image,
				ImagePullPolicy: corev1.PullAlways,
				Command:         spec.Cmd,
				Resources: corev1.ResourceRequirements{
					Requests: reqs,
					Limits:   reqs,
				},
				VolumeMounts: []corev1.VolumeMount{
					{Name: "scratch", MountPath: "/scratch"},
				},
			},
		},
		Volumes: []corev1.Volume{
			{
				Name: "scratch",
				VolumeSource: corev1.VolumeSource{
					Ephemeral: &corev1.EphemeralVolumeSource{
						VolumeClaimTemplate: &corev1.PersistentVolumeClaimTemplate{
							Spec: corev1.PersistentVolumeClaimSpec{
								AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
								Resources: corev1.VolumeResourceRequirements{
									Requests: corev1.ResourceList{
										corev1.ResourceStorage: resource.MustParse(spec.StorageRequest),
									},
								},
							},
						},
					},
				},
			},
		},
		ActiveDeadlineSeconds: spec.ActiveDeadlineSeconds,
	}

	if spec.Pool != "" && spec.Pool != "any" {
		podSpec.NodeSelector = map[string]string{"pool": spec.Pool}
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.JobID,
			Namespace: spec.Namespace,
			Labels:    map[string]string{jobIDLabel: spec.JobID},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{jobIDLabel: spec.JobID},
				},
				Spec: podSpec,
			},
		},
	}

	_, err := k.client.BatchV1().Jobs(spec.Namespace).Create(ctx, job, metav1.CreateOptions{})
	return err
}

func (k *K8s) ListJobs(ctx context.Context, namespace string) ([]JobStatus, error) {
	list, err := k.client.BatchV1().Jobs(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]JobStatus, 0, len(list.Items))
	for _, j := range list.Items {
		out = append(out, toJobStatus(&j))
	}
	return out, nil
}

func (k *K8s) GetJob(ctx context.Context, namespace, name string) (*JobStatus, error) {
	j, err := k.client.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return &JobStatus{Name: name, Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	status := toJobStatus(j)
	return &status, nil
}

func toJobStatus(j *batchv1.Job) JobStatus {
	status := JobStatus{
		Name:      j.Name,
		Exists:    true,
		Succeeded: j.Status.Succeeded > 0,
		Failed:    j.Status.Failed > 0,
	}
	for _, c := range j.Status.Conditions {
		if c.Type == batchv1.JobFailed || c.Type == batchv1.JobComplete {
			status.LastConditionMsg = c.Reason
		}
	}
	return status
}

// DeleteJob uses background propagation, per spec.md §4.2.
func (k *K8s) DeleteJob(ctx context.Context, namespace, name string) error {
	policy := metav1.DeletePropagationBackground
	err := k.client.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (k *K8s) ListPods(ctx context.Context, namespace string) ([]Pod, error) {
	list, err := k.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Pod, 0, len(list.Items))
	for _, p := range list.Items {
		out = append(out, toPod(&p))
	}
	return out, nil
}

func (k *K8s) GetPod(ctx context.Context, namespace, jobID string) (*Pod, error) {
	list, err := k.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", jobIDLabel, jobID),
	})
	if err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, nil
	}
	pod := toPod(&list.Items[0])
	return &pod, nil
}

func toPod(p *corev1.Pod) Pod {
	pod := Pod{
		Name:  p.Name,
		JobID: p.Labels[jobIDLabel],
		IP:    p.Status.PodIP,
		Phase: string(p.Status.Phase),
	}
	for _, cs := range p.Status.ContainerStatuses {
		if cs.State.Terminated != nil {
			code := cs.State.Terminated.ExitCode
			pod.TerminatedExitCode = &code
			pod.TerminatedReason = cs.State.Terminated.Reason
		}
	}
	return pod
}

func (k *K8s) DeletePod(ctx context.Context, namespace, name string) error {
	err := k.client.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (k *K8s) GetJobLog(ctx context.Context, namespace, podName string) (string, error) {
	req := k.client.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var out []byte
	reader := bufio.NewReader(stream)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return string(out), nil
}

// RestartDeployment patches the pod template's annotations with a fresh
// timestamp, which the deployment controller treats as a template change
// and rolls every pod, per spec.md §4.2.
func (k *K8s) RestartDeployment(ctx context.Context, namespace, name string) error {
	patch := fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{"model-factory/restartedAt":%q}}}}}`,
		time.Now().UTC().Format(time.RFC3339),
	)
	_, err := k.client.AppsV1().Deployments(namespace).Patch(
		ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	return err
}
