// Copyright 2020 The gVisor Authors.
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

package igmp

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default link parameters, per §3.
const (
	DefaultRobustnessVariable = 2
	DefaultQueryInterval      = 125 * time.Second
	DefaultMaxResponseTime    = 10 * time.Second // 100 in 1/10s units
)

// DefaultUnsolicitedReportInterval is the retransmission spacing for
// state-change reports (§4.2), 10 in 1/10s units.
const DefaultUnsolicitedReportInterval = time.Second

// Options holds the link table's defaults for newly-created Links. The
// teacher configures IGMP with a plain struct (IGMPOptions{Enabled bool});
// this repo follows the same idiom but widens it to the tunables §3 names,
// optionally loaded from a YAML document (see LoadOptions) rather than only
// from code constants.
type Options struct {
	// Enabled indicates whether IGMP participates at all: when false, join
	// still tracks socket membership but never emits wire traffic, and
	// incoming queries/reports are ignored (the teacher's "dontInitialize"
	// path).
	Enabled bool `yaml:"enabled"`

	RobustnessVariable        uint8         `yaml:"robustnessVariable"`
	QueryInterval             time.Duration `yaml:"queryInterval"`
	MaxResponseTime           time.Duration `yaml:"maxResponseTime"`
	UnsolicitedReportInterval time.Duration `yaml:"unsolicitedReportInterval"`
}

// DefaultOptions returns the §3 defaults with IGMP enabled.
func DefaultOptions() Options {
	return Options{
		Enabled:                   true,
		RobustnessVariable:        DefaultRobustnessVariable,
		QueryInterval:             DefaultQueryInterval,
		MaxResponseTime:           DefaultMaxResponseTime,
		UnsolicitedReportInterval: DefaultUnsolicitedReportInterval,
	}
}

// optionsDocument mirrors Options for YAML decoding, except Enabled is a
// pointer so LoadOptions can tell "the document left this unset" apart from
// "the document explicitly set it to false" — a plain bool can't distinguish
// those, and DefaultOptions().Enabled is true, so a non-pointer field could
// never be used to disable IGMP from a config file.
type optionsDocument struct {
	Enabled                   *bool         `yaml:"enabled"`
	RobustnessVariable        uint8         `yaml:"robustnessVariable"`
	QueryInterval             time.Duration `yaml:"queryInterval"`
	MaxResponseTime           time.Duration `yaml:"maxResponseTime"`
	UnsolicitedReportInterval time.Duration `yaml:"unsolicitedReportInterval"`
}

// LoadOptions reads a YAML options document from path, overlaying it onto
// DefaultOptions for any field left unset (zero-valued, or for Enabled,
// absent) in the document.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	var doc optionsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Options{}, err
	}
	if doc.Enabled != nil {
		opts.Enabled = *doc.Enabled
	}
	if doc.RobustnessVariable != 0 {
		opts.RobustnessVariable = doc.RobustnessVariable
	}
	if doc.QueryInterval != 0 {
		opts.QueryInterval = doc.QueryInterval
	}
	if doc.MaxResponseTime != 0 {
		opts.MaxResponseTime = doc.MaxResponseTime
	}
	if doc.UnsolicitedReportInterval != 0 {
		opts.UnsolicitedReportInterval = doc.UnsolicitedReportInterval
	}
	return opts, nil
}
