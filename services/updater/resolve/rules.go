// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"path"
	"slices"

	"github.com/bundlenudge/bundlenudge/pkg/version"
	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
)

// rulesMatch reports whether the device satisfies every targeting rule.
// An empty rule set matches all devices.
func rulesMatch(rules []datatypes.TargetingRule, device *datatypes.DeviceAttributes) bool {
	for i := range rules {
		if !ruleMatches(&rules[i], device) {
			return false
		}
	}
	return true
}

// ruleMatches evaluates one predicate. Unknown attributes or operators
// fail closed: a rule the server does not understand must not widen a
// release's audience.
func ruleMatches(rule *datatypes.TargetingRule, device *datatypes.DeviceAttributes) bool {
	attr, ok := device.Attribute(rule.Attribute)
	if !ok {
		return false
	}

	switch rule.Operator {
	case datatypes.OpEquals:
		return attr == rule.Value
	case datatypes.OpIn:
		return slices.Contains(rule.Values, attr)
	case datatypes.OpSemverRange:
		if !version.IsValid(attr) {
			return false
		}
		if rule.Min != "" && version.Less(attr, rule.Min) {
			return false
		}
		if rule.Max != "" && version.Less(rule.Max, attr) {
			return false
		}
		return true
	case datatypes.OpMatches:
		matched, err := path.Match(rule.Value, attr)
		return err == nil && matched
	default:
		return false
	}
}
