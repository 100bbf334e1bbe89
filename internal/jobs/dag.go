package jobs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

var (
	// ErrCycle is returned when the dependency graph is not acyclic.
	ErrCycle = errors.New("job graph has a cycle")
	// ErrUnknownDependency is returned when a job depends on an id that does not exist.
	ErrUnknownDependency = errors.New("job depends on unknown job")
	// ErrDuplicateID is returned when two jobs share an id.
	ErrDuplicateID = errors.New("duplicate job id")
)

// Waves groups jobs into dependency levels: every job in wave n depends only
// on jobs in earlier waves. Order within a wave follows the input order.
func Waves(jobs []manifest.Job) ([][]manifest.Job, error) {
	index := make(map[string]int, len(jobs))
	for i, job := range jobs {
		if _, dup := index[job.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
		}
		index[job.ID] = i
	}

	indegree := make([]int, len(jobs))
	dependents := make([][]int, len(jobs))
	for i, job := range jobs {
		for _, dep := range job.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownDependency, job.ID, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var current []int
	for i := range jobs {
		if indegree[i] == 0 {
			current = append(current, i)
		}
	}

	var waves [][]manifest.Job
	seen := 0
	for len(current) > 0 {
		wave := make([]manifest.Job, 0, len(current))
		var next []int
		for _, i := range current {
			wave = append(wave, jobs[i])
			seen++
			for _, d := range dependents[i] {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		sort.Ints(next)
		waves = append(waves, wave)
		current = next
	}

	if seen != len(jobs) {
		return nil, ErrCycle
	}
	return waves, nil
}

// TopoOrder returns job ids in a dependency-respecting order.
func TopoOrder(jobs []manifest.Job) ([]string, error) {
	waves, err := Waves(jobs)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(jobs))
	for _, wave := range waves {
		for _, job := range wave {
			order = append(order, job.ID)
		}
	}
	return order, nil
}

// Ready returns the jobs that are not done and whose dependencies all are.
func Ready(jobs []manifest.Job, done map[string]bool) []manifest.Job {
	var ready []manifest.Job
	for _, job := range jobs {
		if done[job.ID] {
			continue
		}
		eligible := true
		for _, dep := range job.DependsOn {
			if !done[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, job)
		}
	}
	return ready
}
