// SPDX-License-Identifier: EPL-2.0

package query

import (
	"encoding/json"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/tools/clientcmd"

	"runcell/internal/engine"
	"runcell/pkg/document"
)

// KubernetesDriver implements the kubernetes query block via client-go's
// dynamic client, so a single driver covers both core and custom resources
// without a typed clientset per kind.
type KubernetesDriver struct{}

type kubeConn struct {
	client    dynamic.Interface
	namespace string
	resource  string
	name      string
	action    string
}

// resourceGVRs maps the handful of resource kinds this block supports to
// their GroupVersionResource; anything else is assumed core/v1.
var resourceGVRs = map[string]schema.GroupVersionResource{
	"pods":         {Version: "v1", Resource: "pods"},
	"services":     {Version: "v1", Resource: "services"},
	"configmaps":   {Version: "v1", Resource: "configmaps"},
	"secrets":      {Version: "v1", Resource: "secrets"},
	"namespaces":   {Version: "v1", Resource: "namespaces"},
	"nodes":        {Version: "v1", Resource: "nodes"},
	"deployments":  {Group: "apps", Version: "v1", Resource: "deployments"},
	"statefulsets": {Group: "apps", Version: "v1", Resource: "statefulsets"},
	"daemonsets":   {Group: "apps", Version: "v1", Resource: "daemonsets"},
	"replicasets":  {Group: "apps", Version: "v1", Resource: "replicasets"},
	"jobs":         {Group: "batch", Version: "v1", Resource: "jobs"},
	"cronjobs":     {Group: "batch", Version: "v1", Resource: "cronjobs"},
}

func gvrFor(resource string) schema.GroupVersionResource {
	if gvr, ok := resourceGVRs[resource]; ok {
		return gvr
	}
	return schema.GroupVersionResource{Version: "v1", Resource: resource}
}

func (KubernetesDriver) Connect(ec *engine.ExecutionContext, connStr string) (any, error) {
	kubeconfigPath, err := ec.Resolver.Render(connStr)
	if err != nil {
		return nil, err
	}

	block, ok := ec.Block.(*document.QueryBlock)
	if !ok {
		return nil, fmt.Errorf("kubernetes: handler received a non-query block")
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("kubernetes: load kubeconfig: %w", err)
	}
	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("kubernetes: build client: %w", err)
	}

	namespace, err := ec.Resolver.Render(block.Namespace)
	if err != nil {
		return nil, err
	}
	resource, err := ec.Resolver.Render(block.Resource)
	if err != nil {
		return nil, err
	}
	name, err := ec.Resolver.Render(block.Name)
	if err != nil {
		return nil, err
	}
	action := block.Action
	if action == "" {
		action = "get"
	}

	return &kubeConn{client: client, namespace: namespace, resource: resource, name: name, action: action}, nil
}

func (KubernetesDriver) Disconnect(any) {}

func (KubernetesDriver) Execute(ec *engine.ExecutionContext, conn any, _ string) error {
	c := conn.(*kubeConn)
	gvr := gvrFor(c.resource)
	res := c.client.Resource(gvr).Namespace(c.namespace)

	started := time.Now()
	switch c.action {
	case "get":
		obj, err := res.Get(ec.Context, c.name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("kubernetes: get %s/%s: %w", c.resource, c.name, err)
		}
		ec.Object(Result{Rows: []map[string]any{objectToRow(obj)}, DurationS: time.Since(started).Seconds()})

	case "list":
		list, err := res.List(ec.Context, metav1.ListOptions{})
		if err != nil {
			return fmt.Errorf("kubernetes: list %s: %w", c.resource, err)
		}
		rows := make([]map[string]any, 0, len(list.Items))
		for _, item := range list.Items {
			rows = append(rows, objectToRow(&item))
		}
		ec.Object(Result{Rows: rows, DurationS: time.Since(started).Seconds()})

	case "delete":
		if err := res.Delete(ec.Context, c.name, metav1.DeleteOptions{}); err != nil {
			return fmt.Errorf("kubernetes: delete %s/%s: %w", c.resource, c.name, err)
		}
		ec.Object(Result{RowsAffected: 1, DurationS: time.Since(started).Seconds()})

	default:
		return fmt.Errorf("kubernetes: unsupported action %q", c.action)
	}
	return nil
}

func objectToRow(obj *unstructured.Unstructured) map[string]any {
	raw, err := json.Marshal(obj.Object)
	if err != nil {
		return map[string]any{"name": obj.GetName(), "namespace": obj.GetNamespace()}
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return map[string]any{"name": obj.GetName(), "namespace": obj.GetNamespace()}
	}
	return row
}
