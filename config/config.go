// File: config/config.go
// Author: momentics <momentics@gmail.com>
//
// Tuning is the set of Array construction knobs that are reasonable to load
// from a deploy-time file rather than hardcode: event-array capacity,
// default wait deadline, the EINTR retry budget, the default Port accept
// backlog, and DatagramArray sizing defaults. Loaded with gopkg.in/yaml.v3
// directly against its documented struct-tag API, the same way the rest of
// the ecosystem configures long-running network services.

package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the Array/Port/DatagramArray defaults a deployment may
// override.
type Tuning struct {
	Array struct {
		Capacity           int `yaml:"capacity"`
		WaitDeadlineMillis int `yaml:"wait_deadline_millis"`
	} `yaml:"array"`

	Port struct {
		EINTRBudget int `yaml:"eintr_budget"`
		Backlog     int `yaml:"backlog"`
	} `yaml:"port"`

	Datagram struct {
		Space int `yaml:"space"`
		Count int `yaml:"count"`
	} `yaml:"datagram"`
}

// Default returns the built-in tuning values, matching core.DefaultCapacity
// / core.DefaultWaitMillis / port.EINTRBudget.
func Default() Tuning {
	var t Tuning
	t.Array.Capacity = 16
	t.Array.WaitDeadlineMillis = 8000
	t.Port.EINTRBudget = 16
	t.Port.Backlog = 128
	t.Datagram.Space = 1500
	t.Datagram.Count = 32
	return t
}

// Load reads a Tuning document from path, starting from Default and
// overriding only the fields present in the file.
func Load(path string) (Tuning, error) {
	t := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, err
	}
	return t, nil
}
