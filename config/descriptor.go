// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads an event instance's deployment descriptor: the
// handful of sizing and retry-bound knobs a deployment manifest would
// normally supply (what the original binding calls the
// LolaEventInstanceDeployment). It is a pure data-loading concern, kept
// deliberately outside eventctl so the control plane never depends on a
// file format.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"code.hybscloud.com/lola/eventctl"
)

// Descriptor is one event instance's deployment-time configuration.
type Descriptor struct {
	MaxSlots       int  `toml:"max_slots"`
	MaxSubscribers int  `toml:"max_subscribers"`
	AsilBEnabled   bool `toml:"asil_b_enabled"`

	MaxAllocateRetries      int `toml:"max_allocate_retries"`
	MaxReferenceRetries     int `toml:"max_reference_retries"`
	MaxMultiAllocateRetries int `toml:"max_multi_allocate_retries"`
}

// defaults mirror eventctl's compiled-in retry bounds, applied to any
// field the descriptor leaves at its zero value.
var defaults = Descriptor{
	MaxAllocateRetries:      100,
	MaxReferenceRetries:     100,
	MaxMultiAllocateRetries: 100,
}

// Load parses the TOML deployment descriptor at path and fills in any
// unset retry bound from defaults.
func Load(path string) (Descriptor, error) {
	var d Descriptor
	if _, err := toml.DecodeFile(path, &d); err != nil {
		return Descriptor{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyDefaults(&d)
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func applyDefaults(d *Descriptor) {
	if d.MaxAllocateRetries == 0 {
		d.MaxAllocateRetries = defaults.MaxAllocateRetries
	}
	if d.MaxReferenceRetries == 0 {
		d.MaxReferenceRetries = defaults.MaxReferenceRetries
	}
	if d.MaxMultiAllocateRetries == 0 {
		d.MaxMultiAllocateRetries = defaults.MaxMultiAllocateRetries
	}
}

// Validate checks the descriptor's sizing fields are in range. Retry
// bounds are advisory defaults elsewhere in this module and are not
// checked. Validate rejects max_slots outside [1, MaxSlotsLimit] (which
// would make eventctl terminate the process on construction) and
// max_subscribers below 1.
func (d Descriptor) Validate() error {
	if d.MaxSlots < 1 || d.MaxSlots > eventctl.MaxSlotsLimit {
		return fmt.Errorf("config: max_slots must be in [1, %d], got %d", eventctl.MaxSlotsLimit, d.MaxSlots)
	}
	if d.MaxSubscribers < 1 {
		return fmt.Errorf("config: max_subscribers must be >= 1, got %d", d.MaxSubscribers)
	}
	return nil
}
