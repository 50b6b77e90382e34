package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/catalog"
	"github.com/cuemby/pulsar-rust-broker/pkg/config"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a topology file",
	Long: `Apply declares the broker's static topology (nodes, topics,
partitions, subscriptions) from a YAML file of resources.

Examples:
  # Bootstrap a cluster's catalog from a topology file
  broker apply -f topology.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML topology file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// resource is one YAML document in a topology file: a Kind naming which
// catalog entity it declares, and a loosely-typed Spec the apply* helpers
// below read field-by-field.
type resource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   resourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type resourceMetadata struct {
	Name string `yaml:"name"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	cfg, err := config.FromFlags(cmd)
	if err != nil {
		return fmt.Errorf("failed to read config: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %v", err)
	}
	defer f.Close()

	store, err := catalog.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open catalog store: %v", err)
	}
	defer store.Close()
	cat, err := catalog.Load(store)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %v", err)
	}

	dec := yaml.NewDecoder(f)
	for {
		var res resource
		if err := dec.Decode(&res); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to parse YAML: %v", err)
		}
		if err := applyResource(cat, &res); err != nil {
			return err
		}
	}
	return nil
}

func applyResource(cat *catalog.Catalog, res *resource) error {
	switch res.Kind {
	case "Node":
		return applyNode(cat, res)
	case "Topic":
		return applyTopic(cat, res)
	case "Partition":
		return applyPartition(cat, res)
	case "Subscription":
		return applySubscription(cat, res)
	default:
		return fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
}

func applyNode(cat *catalog.Catalog, res *resource) error {
	id := types.NodeID(getInt(res.Spec, "id", 0))
	if _, err := cat.Node(id); err == nil {
		fmt.Printf("Node already exists: %s (skipping)\n", res.Metadata.Name)
		return nil
	}
	node := &types.Node{
		ID:   id,
		Host: getString(res.Spec, "host", "127.0.0.1"),
		Port: getInt(res.Spec, "port", 8080),
	}
	if err := cat.CreateNode(node); err != nil {
		return fmt.Errorf("failed to create node: %v", err)
	}
	fmt.Printf("✓ Node created: %s (id=%d)\n", res.Metadata.Name, id)
	return nil
}

func applyTopic(cat *catalog.Catalog, res *resource) error {
	id := types.TopicID(getInt(res.Spec, "id", 0))
	if _, err := cat.Topic(id); err == nil {
		fmt.Printf("Topic already exists: %s (skipping)\n", res.Metadata.Name)
		return nil
	}
	topic := &types.Topic{
		ID:             id,
		Name:           res.Metadata.Name,
		PartitionCount: getInt(res.Spec, "partitionCount", 1),
	}
	if err := cat.CreateTopic(topic); err != nil {
		return fmt.Errorf("failed to create topic: %v", err)
	}
	fmt.Printf("✓ Topic created: %s (id=%d, partitions=%d)\n", res.Metadata.Name, id, topic.PartitionCount)
	return nil
}

func applyPartition(cat *catalog.Catalog, res *resource) error {
	id := types.PartitionID(getInt(res.Spec, "id", 0))
	if _, err := cat.Partition(id); err == nil {
		fmt.Printf("Partition already exists: %s (skipping)\n", res.Metadata.Name)
		return nil
	}
	part := &types.Partition{
		ID:        id,
		Topic:     types.TopicID(getInt(res.Spec, "topicId", 0)),
		OwnerNode: types.NodeID(getInt(res.Spec, "ownerNode", 0)),
	}
	if err := cat.CreatePartition(part); err != nil {
		return fmt.Errorf("failed to create partition: %v", err)
	}
	fmt.Printf("✓ Partition created: %s (id=%d, topic=%d, owner=%d)\n", res.Metadata.Name, id, part.Topic, part.OwnerNode)
	return nil
}

func applySubscription(cat *catalog.Catalog, res *resource) error {
	id := types.SubscriptionID(getInt(res.Spec, "id", 0))
	if _, err := cat.Subscription(id); err == nil {
		fmt.Printf("Subscription already exists: %s (skipping)\n", res.Metadata.Name)
		return nil
	}
	sub := &types.Subscription{
		ID:         id,
		Topic:      types.TopicID(getInt(res.Spec, "topicId", 0)),
		Name:       res.Metadata.Name,
		Discipline: parseDiscipline(getString(res.Spec, "discipline", "shared")),
		AckTimeout: time.Duration(getInt(res.Spec, "ackTimeoutSeconds", 30)) * time.Second,
	}
	if err := cat.CreateSubscription(sub); err != nil {
		return fmt.Errorf("failed to create subscription: %v", err)
	}
	fmt.Printf("✓ Subscription created: %s (id=%d, topic=%d, discipline=%s)\n", res.Metadata.Name, id, sub.Topic, sub.Discipline)
	return nil
}

func parseDiscipline(s string) types.Discipline {
	switch s {
	case "multicast":
		return types.Multicast
	case "key_shared", "keyshared":
		return types.KeyShared
	default:
		return types.Shared
	}
}

// getString and getInt read loosely-typed YAML spec fields the way
// cmd/warren/apply.go's helpers read a resource's generic spec map.
func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}
