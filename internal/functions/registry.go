// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

// Package functions implements the metric function pipeline: a closed
// registry of named, categorized transformations and the engine that
// composes them in a fixed category order.
package functions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexanderzobnin/grafana-zabbix/internal/timeseries"
)

// Category fixes when a function runs in the pipeline. It is a static
// property of the function name, never user-supplied.
type Category int

const (
	CategoryTime Category = iota
	CategoryTransform
	CategoryFilter
	CategoryAggregate
	CategoryAlias
)

func (c Category) String() string {
	switch c {
	case CategoryTime:
		return "Time"
	case CategoryTransform:
		return "Transform"
	case CategoryFilter:
		return "Filter"
	case CategoryAggregate:
		return "Aggregate"
	case CategoryAlias:
		return "Alias"
	}
	return "Unknown"
}

// Call is one function invocation on a target: a registered name and
// its positional parameters.
type Call struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

// Text renders the call the way the user wrote it, e.g. "avg()" or
// "alias(CPU avg)". Used as the label of aggregated output.
func (c Call) Text() string {
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(c.Params, ", "))
}

// ErrUnknownFunction marks a function name absent from the registry.
// It is a configuration error surfaced to the caller, never silently
// ignored.
var ErrUnknownFunction = errors.New("unknown function")

type applyFunc func(in []timeseries.Series, params []string) ([]timeseries.Series, error)

type definition struct {
	category Category
	apply    applyFunc
}

// registry maps every supported function name to its category and
// implementation. The set is closed: names are rejected at
// configuration-validation time, not at call time.
var registry = map[string]definition{
	"timeShift": {CategoryTime, nil},

	"scale":         {CategoryTransform, eachSeries(applyScale)},
	"offset":        {CategoryTransform, eachSeries(applyOffset)},
	"delta":         {CategoryTransform, eachSeries(applyDelta)},
	"rate":          {CategoryTransform, eachSeries(applyRate)},
	"movingAverage": {CategoryTransform, eachSeries(applyMovingAverage)},

	"top":     {CategoryFilter, applyTop},
	"bottom":  {CategoryFilter, applyBottom},
	"exclude": {CategoryFilter, applyExclude},

	"avg":       {CategoryAggregate, aggregator(aggAvg)},
	"min":       {CategoryAggregate, aggregator(aggMin)},
	"max":       {CategoryAggregate, aggregator(aggMax)},
	"sumSeries": {CategoryAggregate, aggregator(aggSum)},

	"alias":        {CategoryAlias, applyAlias},
	"setAlias":     {CategoryAlias, applyAlias},
	"aliasByRegex": {CategoryAlias, applyAliasByRegex},
}

// Lookup returns the category of a registered function name.
func Lookup(name string) (Category, bool) {
	def, ok := registry[name]
	return def.category, ok
}

// Validate rejects calls referencing unregistered names.
func Validate(calls []Call) error {
	for _, c := range calls {
		if _, ok := registry[c.Name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFunction, c.Name)
		}
	}
	return nil
}
