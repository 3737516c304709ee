package dht

import (
	"github.com/kutluhann/kademlia-routing/config"
)

func OptionsFromConfig(c *config.Config) Options {
	return Options{
		KSize:             c.K,
		ReplacementFactor: c.ReplacementFactor,
		TargetDepth:       c.TargetDepth,
		Alpha:             c.Alpha,
		HeapSize:          c.HeapSize,
		BucketIPLimit:     c.BucketIPLimit,
		BucketSubnet:      c.BucketSubnet,
	}
}
