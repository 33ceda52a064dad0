// Package locator finds the accelerator agent and its global memory pool.
//
// The runtime enumerates agents and pools through visitors. Visitor wraps
// that protocol in a typed result so a search either continues, stops with a
// match or stops with a failure, without sharing untyped state with the
// runtime.
package locator

import (
	"github.com/fxnlabs/fuzzyhsa/internal/diag"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
)

type outcome int

const (
	continueSearch outcome = iota
	found
	failed
)

// Result is what a Visitor decides for one element.
type Result[H any] struct {
	outcome outcome
	value   H
	err     error
}

// Continue moves on to the next element.
func Continue[H any]() Result[H] {
	return Result[H]{outcome: continueSearch}
}

// Found stops the search with h.
func Found[H any](h H) Result[H] {
	return Result[H]{outcome: found, value: h}
}

// Fail stops the search with err.
func Fail[H any](err error) Result[H] {
	return Result[H]{outcome: failed, err: err}
}

// Visitor inspects one enumerated element.
type Visitor[H any] func(H) Result[H]

// First runs visit over the elements produced by iterate until it returns
// Found or Fail. ok is false when every element was visited without a match.
func First[H any](iterate func(func(H) bool) error, visit Visitor[H]) (h H, ok bool, err error) {
	var res Result[H]
	if err := iterate(func(e H) bool {
		res = visit(e)
		return res.outcome == continueSearch
	}); err != nil {
		return h, false, err
	}
	switch res.outcome {
	case found:
		return res.value, true, nil
	case failed:
		return h, false, res.err
	default:
		return h, false, nil
	}
}

// FindAccelerator returns the first GPU agent. Agents whose device class
// cannot be queried are skipped.
func FindAccelerator(rt hsa.Runtime, report *diag.Reporter) (hsa.Agent, error) {
	agent, ok, err := First(rt.IterateAgents, func(a hsa.Agent) Result[hsa.Agent] {
		dev, err := rt.AgentDevice(a)
		if err != nil || dev != hsa.DeviceTypeGPU {
			return Continue[hsa.Agent]()
		}
		if report.Enabled() {
			if name, err := rt.AgentName(a); err == nil {
				report.GPUDevice(name)
			}
		}
		return Found(a)
	})
	if err != nil {
		return hsa.Agent{}, hsa.Fail(hsa.KindEnvironment, "hsa_iterate_agents", err)
	}
	if !ok {
		return hsa.Agent{}, hsa.Failf(hsa.KindEnvironment, "hsa_iterate_agents", "no GPU agent found")
	}
	return agent, nil
}

// FindGlobalPool returns the first global-segment memory pool of agent.
func FindGlobalPool(rt hsa.Runtime, agent hsa.Agent, report *diag.Reporter) (hsa.MemoryPool, error) {
	iterate := func(visit func(hsa.MemoryPool) bool) error {
		return rt.IterateMemoryPools(agent, visit)
	}
	pool, ok, err := First(iterate, func(p hsa.MemoryPool) Result[hsa.MemoryPool] {
		seg, err := rt.PoolSegment(p)
		if err != nil || seg != hsa.SegmentGlobal {
			return Continue[hsa.MemoryPool]()
		}
		if report.Enabled() {
			if size, err := rt.PoolSize(p); err == nil {
				report.GlobalPoolSize(size)
			}
		}
		return Found(p)
	})
	if err != nil {
		return hsa.MemoryPool{}, hsa.Fail(hsa.KindEnvironment, "hsa_amd_agent_iterate_memory_pools", err)
	}
	if !ok {
		return hsa.MemoryPool{}, hsa.Failf(hsa.KindEnvironment, "hsa_amd_agent_iterate_memory_pools", "no global memory pool found")
	}
	return pool, nil
}
