// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package metadata

// Group is a Zabbix host group.
type Group struct {
	ID   string `json:"groupid"`
	Name string `json:"name"`
}

// Host is a monitored host. Name is the visible name, Host the
// technical one.
type Host struct {
	ID   string `json:"hostid"`
	Name string `json:"name"`
	Host string `json:"host"`
}

// Application groups items on a host. Absent on Zabbix 5.4 and higher.
type Application struct {
	ID     string `json:"applicationid"`
	Name   string `json:"name"`
	HostID string `json:"hostid"`
}

// Item is the leaf metric source of the hierarchy.
type Item struct {
	ID        string     `json:"itemid"`
	Name      string     `json:"name"`
	Key       string     `json:"key_"`
	ValueType int        `json:"value_type,string"`
	HostID    string     `json:"hostid"`
	Status    string     `json:"status"`
	State     string     `json:"state"`
	Hosts     []ItemHost `json:"hosts"`
}

// ItemHost is the host reference embedded in item.get replies.
type ItemHost struct {
	ID   string `json:"hostid"`
	Name string `json:"name"`
}

// Zabbix item value types.
const (
	ValueTypeFloat    = 0
	ValueTypeString   = 1
	ValueTypeLog      = 2
	ValueTypeUnsigned = 3
	ValueTypeText     = 4
)

// ValueKind restricts items to numeric or text values at the remote
// query stage.
type ValueKind string

const (
	KindNumeric ValueKind = "num"
	KindText    ValueKind = "text"
	KindAny     ValueKind = ""
)

// ValueTypes returns the value_type filter for item.get, or nil when
// no restriction applies.
func (k ValueKind) ValueTypes() []int {
	switch k {
	case KindNumeric:
		return []int{ValueTypeFloat, ValueTypeUnsigned}
	case KindText:
		return []int{ValueTypeString, ValueTypeLog, ValueTypeText}
	default:
		return nil
	}
}

// IsNumeric reports whether the item holds numeric samples.
func (i Item) IsNumeric() bool {
	return i.ValueType == ValueTypeFloat || i.ValueType == ValueTypeUnsigned
}
